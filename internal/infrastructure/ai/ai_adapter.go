package ai

import (
	"context"
	"encoding/json"

	judgeAI "github.com/goodnight000/kittycourt-backend/internal/ai"
	"github.com/goodnight000/kittycourt-backend/internal/domain/entity"
)

// JudgeAdapter переводит сессию суда во вход ИИ-клиента и обратно.
type JudgeAdapter struct {
	client *judgeAI.Client
}

func NewJudgeAdapter(client *judgeAI.Client) *JudgeAdapter {
	return &JudgeAdapter{client: client}
}

func (a *JudgeAdapter) Analyze(ctx context.Context, s *entity.Session) (json.RawMessage, error) {
	return a.client.Analyze(ctx, toCaseInput(s))
}

func (a *JudgeAdapter) Prime(ctx context.Context, s *entity.Session, analysis json.RawMessage) (json.RawMessage, error) {
	return a.client.Prime(ctx, toCaseInput(s), analysis)
}

func (a *JudgeAdapter) BuildJointMenu(ctx context.Context, s *entity.Session) (json.RawMessage, error) {
	return a.client.JointMenu(ctx, toCaseInput(s))
}

func (a *JudgeAdapter) ProposeResolutions(ctx context.Context, s *entity.Session) ([]entity.ResolutionOption, error) {
	resolutions, err := a.client.ProposeResolutions(ctx, toCaseInput(s))
	if err != nil {
		return nil, err
	}

	options := make([]entity.ResolutionOption, 0, len(resolutions))
	for _, r := range resolutions {
		options = append(options, entity.ResolutionOption{ID: r.ID, Payload: r.Payload})
	}
	return options, nil
}

func (a *JudgeAdapter) MergeResolutions(ctx context.Context, s *entity.Session, creatorPick, partnerPick entity.ResolutionOption) (entity.ResolutionOption, error) {
	merged, err := a.client.MergeResolutions(ctx, toCaseInput(s), creatorPick.Payload, partnerPick.Payload)
	if err != nil {
		return entity.ResolutionOption{}, err
	}
	return entity.ResolutionOption{ID: entity.HybridResolutionID, Payload: merged}, nil
}

func (a *JudgeAdapter) RenderVerdict(ctx context.Context, s *entity.Session, version int) (json.RawMessage, error) {
	var resolution json.RawMessage
	if s.FinalResolution != nil {
		resolution = s.FinalResolution.Payload
	}
	return a.client.RenderVerdict(ctx, toCaseInput(s), resolution, version)
}

func toCaseInput(s *entity.Session) judgeAI.CaseInput {
	in := judgeAI.CaseInput{
		JudgeType: string(s.JudgeType),
		Creator:   toParty("creator", s.Creator),
		Partner:   toParty("partner", s.Partner),
		Analysis:  s.Analysis,
		JointMenu: s.JointMenu,
	}
	for _, add := range s.Addenda {
		in.Addenda = append(in.Addenda, add.Text)
	}
	return in
}

func toParty(role string, p entity.PartyState) judgeAI.Party {
	party := judgeAI.Party{Role: role}
	if p.Evidence != nil {
		party.Evidence = *p.Evidence
	}
	if p.Feelings != nil {
		party.Feelings = *p.Feelings
	}
	if p.Needs != nil {
		party.Needs = *p.Needs
	}
	return party
}
