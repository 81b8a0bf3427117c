// Package courtclient - клиентская сторона суда: контроллер сессии и
// транспорты (сокет, REST и адаптивный с откатом на REST).
package courtclient

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/goodnight000/kittycourt-backend/internal/pkg/apperror"
	"github.com/goodnight000/kittycourt-backend/internal/usecase/courtroom"
)

// ErrTransportFailure - соединение оборвалось до ответа. Успех действия
// неизвестен, состояние нужно перечитать.
var ErrTransportFailure = apperror.New(apperror.ErrCodeTransportFailure, "соединение с сервером потеряно")

// EventHandler получает события, которые сервер присылает без запроса.
type EventHandler func(event string, data json.RawMessage)

// SessionTransport доставляет действия на сервер. Для контроллера
// сокет и REST неотличимы: одно и то же действие даёт один и тот же StateSync.
type SessionTransport interface {
	Send(ctx context.Context, action courtroom.ActionType, payload interface{}) (*courtroom.StateSync, error)
	Subscribe(handler EventHandler)
	Connected() bool
}

// IsTransportFailure сообщает, что ошибка вызвана обрывом связи, а не отказом сервера.
func IsTransportFailure(err error) bool {
	return errors.Is(err, ErrTransportFailure) || apperror.CodeOf(err) == apperror.ErrCodeTransportFailure
}

func encodePayload(payload interface{}) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	}
	return json.Marshal(payload)
}

// remoteError восстанавливает ошибку сервера по коду и сообщению.
func remoteError(code, message string) error {
	if code == "" {
		code = string(apperror.ErrCodeInternal)
	}
	return apperror.New(apperror.ErrorCode(code), message)
}
