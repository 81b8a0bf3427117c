package common

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/goodnight000/kittycourt-backend/internal/http/middleware"
	"github.com/goodnight000/kittycourt-backend/internal/service"
	"github.com/goodnight000/kittycourt-backend/internal/usecase/courtroom"
)

var (
	// ErrIdentityNotFound is returned when the auth middleware did not run
	ErrIdentityNotFound = errors.New("пользователь не найден в контексте")

	// ErrInvalidJSON is returned when the request body is not a JSON value
	ErrInvalidJSON = errors.New("тело запроса должно быть JSON")
)

const maxBodyBytes = 64 * 1024

// CurrentIdentity extracts the caller identity from Gin context
func CurrentIdentity(c *gin.Context) (courtroom.Identity, error) {
	raw, exists := c.Get(middleware.ContextIdentityKey)
	if !exists {
		return courtroom.Identity{}, ErrIdentityNotFound
	}

	id, ok := raw.(service.Identity)
	if !ok {
		return courtroom.Identity{}, ErrIdentityNotFound
	}

	return ToCourtIdentity(id), nil
}

// ToCourtIdentity converts token claims into the courtroom caller identity
func ToCourtIdentity(id service.Identity) courtroom.Identity {
	return courtroom.Identity{
		UserID:    id.UserID,
		PartnerID: id.PartnerID,
		CoupleID:  id.CoupleID,
	}
}

// ReadJSONBody returns the raw JSON body; an empty body yields nil
func ReadJSONBody(c *gin.Context) (json.RawMessage, error) {
	if c.Request.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}
	if !json.Valid(body) {
		return nil, ErrInvalidJSON
	}
	return json.RawMessage(body), nil
}
