package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Party - показания одного участника.
type Party struct {
	Role     string `json:"role"`
	Evidence string `json:"evidence"`
	Feelings string `json:"feelings"`
	Needs    string `json:"needs"`
}

// CaseInput - всё, что судья знает о споре на момент вызова.
type CaseInput struct {
	JudgeType string
	Creator   Party
	Partner   Party
	Analysis  json.RawMessage
	JointMenu json.RawMessage
	Addenda   []string
}

// Resolution - вариант решения. Payload содержит исходный объект модели.
type Resolution struct {
	ID      string
	Payload json.RawMessage
}

// Analyze разбирает показания обоих участников.
func (c *Client) Analyze(ctx context.Context, in CaseInput) (json.RawMessage, error) {
	prompt := fmt.Sprintf(`Analyze this dispute between two partners.

%s

Return JSON: {"summary": string, "core_conflict": string, "creator_perspective": string,
"partner_perspective": string, "shared_needs": [string]}`, formatParties(in))

	return c.askJSON(ctx, in.JudgeType, prompt)
}

// Prime готовит индивидуальный материал для обоих участников перед совместным обсуждением.
func (c *Client) Prime(ctx context.Context, in CaseInput, analysis json.RawMessage) (json.RawMessage, error) {
	prompt := fmt.Sprintf(`Using the analysis below, prepare short reflection material for each partner
before they discuss the dispute together.

Analysis: %s

%s

Return JSON: {"creator": {"reflection": string, "questions": [string]},
"partner": {"reflection": string, "questions": [string]}}`, string(analysis), formatParties(in))

	return c.askJSON(ctx, in.JudgeType, prompt)
}

// JointMenu строит темы для совместного обсуждения.
func (c *Client) JointMenu(ctx context.Context, in CaseInput) (json.RawMessage, error) {
	prompt := fmt.Sprintf(`Build a menu of topics the couple should discuss together.

Analysis: %s

Return JSON: {"topics": [{"title": string, "prompt": string}]}`, rawOrNull(in.Analysis))

	return c.askJSON(ctx, in.JudgeType, prompt)
}

// ProposeResolutions предлагает от двух до четырёх вариантов решения с уникальными id.
func (c *Client) ProposeResolutions(ctx context.Context, in CaseInput) ([]Resolution, error) {
	prompt := fmt.Sprintf(`Propose 2 to 4 concrete resolutions for this dispute.

Analysis: %s
Discussion topics: %s

Return JSON: {"resolutions": [{"id": "R1", "title": string, "description": string}]}
Use ids R1, R2, R3, R4.`, rawOrNull(in.Analysis), rawOrNull(in.JointMenu))

	raw, err := c.askJSON(ctx, in.JudgeType, prompt)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Resolutions []json.RawMessage `json:"resolutions"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("ai: некорректный список решений: %w", err)
	}

	seen := make(map[string]bool, len(parsed.Resolutions))
	result := make([]Resolution, 0, len(parsed.Resolutions))
	for i, item := range parsed.Resolutions {
		var head struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(item, &head)
		id := strings.TrimSpace(head.ID)
		if id == "" || seen[id] {
			id = fmt.Sprintf("R%d", i+1)
		}
		seen[id] = true
		result = append(result, Resolution{ID: id, Payload: item})
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("ai: модель не предложила решений")
	}
	return result, nil
}

// MergeResolutions объединяет два разных выбора в одно компромиссное решение.
func (c *Client) MergeResolutions(ctx context.Context, in CaseInput, creatorPick, partnerPick json.RawMessage) (json.RawMessage, error) {
	prompt := fmt.Sprintf(`The partners picked different resolutions. Merge them into one fair hybrid.

Creator picked: %s
Partner picked: %s

Return JSON: {"title": string, "description": string, "from_creator": string, "from_partner": string}`,
		rawOrNull(creatorPick), rawOrNull(partnerPick))

	return c.askJSON(ctx, in.JudgeType, prompt)
}

// RenderVerdict выносит вердикт. Дополнения участников учитываются по порядку.
func (c *Client) RenderVerdict(ctx context.Context, in CaseInput, resolution json.RawMessage, version int) (json.RawMessage, error) {
	var addenda strings.Builder
	for i, text := range in.Addenda {
		fmt.Fprintf(&addenda, "%d. %s\n", i+1, text)
	}
	if addenda.Len() == 0 {
		addenda.WriteString("none")
	}

	prompt := fmt.Sprintf(`Deliver verdict version %d for this dispute.

%s

Analysis: %s
Agreed resolution: %s
Addenda submitted after the previous verdict:
%s

Return JSON: {"ruling": string, "reasoning": string, "action_items": [string], "closing_note": string}`,
		version, formatParties(in), rawOrNull(in.Analysis), rawOrNull(resolution), addenda.String())

	return c.askJSON(ctx, in.JudgeType, prompt)
}

func (c *Client) askJSON(ctx context.Context, judgeType, prompt string) (json.RawMessage, error) {
	messages := []chatMessage{
		{Role: "system", Content: systemPrompt(judgeType)},
		{Role: "user", Content: prompt},
	}

	text, err := c.chatCompletion(ctx, messages)
	if err != nil {
		return nil, err
	}
	return extractJSON(text)
}

// systemPrompt - характер судьи для выбранного варианта.
func systemPrompt(judgeType string) string {
	base := "You are a judge in a couples' court. Be fair to both partners, never take sides without reason, " +
		"and always answer with a single JSON object and nothing else."

	switch judgeType {
	case "swift":
		return base + " Be brief and direct: short sentences, no more than three action items."
	case "wise":
		return base + " Be reflective and gentle: explain the emotional needs behind each position."
	default:
		return base + " Be balanced and clear."
	}
}

func formatParties(in CaseInput) string {
	var b strings.Builder
	for _, p := range []Party{in.Creator, in.Partner} {
		fmt.Fprintf(&b, "%s:\n  evidence: %s\n  feelings: %s\n  needs: %s\n", p.Role, p.Evidence, p.Feelings, p.Needs)
	}
	return b.String()
}

func rawOrNull(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	return string(raw)
}

var codeBlockRe = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// extractJSON достаёт JSON-объект из ответа модели: из markdown-блока
// или между первой "{" и последней "}".
func extractJSON(text string) (json.RawMessage, error) {
	if m := codeBlockRe.FindStringSubmatch(text); len(m) > 1 && json.Valid([]byte(m[1])) {
		return json.RawMessage(m[1]), nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		candidate := text[start : end+1]
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), nil
		}
	}

	return nil, fmt.Errorf("ai: ответ модели не содержит JSON")
}
