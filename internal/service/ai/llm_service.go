package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/mirrorwell/exhibit/backend/internal/analysis/emotion"
	"github.com/mirrorwell/exhibit/backend/internal/config"
	"github.com/mirrorwell/exhibit/backend/internal/model/motion"
	"github.com/mirrorwell/exhibit/backend/internal/model/persona"
)

// Service wraps every LLM call site: persona generation (vision), persona
// evolution, chat replies and motion reactions.
type Service struct {
	chatModel   model.ChatModel
	timeout     time.Duration
	chatChain   compose.Runnable[map[string]any, *schema.Message]
	evolveChain compose.Runnable[map[string]any, *schema.Message]
	reactChain  compose.Runnable[map[string]any, *schema.Message]
}

// NewService builds the chat model and compiles the prompt chains.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	chatChain, err := newChain(ctx, chatModel, chatSystemPrompt, "{query}")
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	evolveChain, err := newChain(ctx, chatModel, evolveSystemPrompt, evolveUserPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to compile evolve chain: %w", err)
	}

	reactChain, err := newChain(ctx, chatModel, reactSystemPrompt, reactUserPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to compile react chain: %w", err)
	}

	return &Service{
		chatModel:   chatModel,
		timeout:     cfg.Timeout,
		chatChain:   chatChain,
		evolveChain: evolveChain,
		reactChain:  reactChain,
	}, nil
}

func newChain(ctx context.Context, chatModel model.ChatModel, system, user string) (compose.Runnable[map[string]any, *schema.Message], error) {
	template := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(chatModel)
	return chain.Compile(ctx)
}

func (s *Service) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// GeneratePersona runs the image-conditioned call over the visitor photo and
// doodle. Implements the builder's Generator contract.
func (s *Service) GeneratePersona(ctx context.Context, photoPath, drawingPath string) (persona.Persona, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	parts := []schema.ChatMessagePart{
		{Type: schema.ChatMessagePartTypeText, Text: generateUserPrompt},
	}
	for _, path := range []string{photoPath, drawingPath} {
		url, err := imageDataURL(path)
		if err != nil {
			return persona.Persona{}, err
		}
		parts = append(parts, schema.ChatMessagePart{
			Type:     schema.ChatMessagePartTypeImageURL,
			ImageURL: &schema.ChatMessageImageURL{URL: url},
		})
	}

	messages := []*schema.Message{
		schema.SystemMessage(generateSystemPrompt),
		{Role: schema.User, MultiContent: parts},
	}

	reply, err := s.chatModel.Generate(ctx, messages)
	if err != nil {
		return persona.Persona{}, fmt.Errorf("persona generation call: %w", err)
	}

	var p persona.Persona
	if err := decodeJSONObject(reply.Content, &p); err != nil {
		return persona.Persona{}, fmt.Errorf("persona generation output: %w", err)
	}
	if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.SystemPrompt) == "" {
		return persona.Persona{}, fmt.Errorf("persona generation output missing name or system_prompt")
	}
	return p, nil
}

// EvolvePersona asks for a merge patch against the current persona.
// Implements the evolver's Patcher contract.
func (s *Service) EvolvePersona(ctx context.Context, current persona.Persona, motionSummary string, reaction motion.Reaction) (persona.Patch, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	personaJSON, err := json.Marshal(current)
	if err != nil {
		return persona.Patch{}, err
	}
	reactionJSON, err := json.Marshal(reaction)
	if err != nil {
		return persona.Patch{}, err
	}

	reply, err := s.evolveChain.Invoke(ctx, map[string]any{
		"persona_json":   string(personaJSON),
		"motion_summary": motionSummary,
		"reaction_json":  string(reactionJSON),
	})
	if err != nil {
		return persona.Patch{}, fmt.Errorf("evolve call: %w", err)
	}

	var patch persona.Patch
	if err := decodeJSONObject(reply.Content, &patch); err != nil {
		return persona.Patch{}, fmt.Errorf("evolve output: %w", err)
	}
	return patch, nil
}

// Chat produces a single free-form reply grounded in the persisted persona.
func (s *Service) Chat(ctx context.Context, rec persona.Record, text string) (string, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	p := rec.Persona
	reply, err := s.chatChain.Invoke(ctx, map[string]any{
		"system_prompt": p.SystemPrompt,
		"traits":        strings.Join(p.Core.Traits, ", "),
		"tone":          p.Core.Tone,
		"taboos":        strings.Join(p.Core.Taboos, ", "),
		"query":         text,
	})
	if err != nil {
		return "", fmt.Errorf("chat call: %w", err)
	}

	content := strings.TrimSpace(reply.Content)
	if content == "" {
		return "", fmt.Errorf("chat call returned empty reply")
	}
	log.Printf("[ai] chat reply for session=%s length=%d", rec.SessionID, len(content))
	return content, nil
}

// React voices the character's response to a motion summary. The state is
// clamped onto the accepted emotion labels.
func (s *Service) React(ctx context.Context, rec persona.Record, motionSummary, motionMatch string) (motion.Reaction, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	states := make([]string, 0, len(emotion.Labels()))
	for _, label := range emotion.Labels() {
		states = append(states, string(label))
	}

	if motionMatch == "" {
		motionMatch = "(no match)"
	}

	reply, err := s.reactChain.Invoke(ctx, map[string]any{
		"system_prompt":  rec.Persona.SystemPrompt,
		"states":         strings.Join(states, ", "),
		"motion_summary": motionSummary,
		"motion_match":   motionMatch,
	})
	if err != nil {
		return motion.Reaction{}, fmt.Errorf("react call: %w", err)
	}

	raw, err := extractJSONObject(reply.Content)
	if err != nil {
		return motion.Reaction{}, fmt.Errorf("react output: %w", err)
	}

	var reaction motion.Reaction
	if err := json.Unmarshal([]byte(raw), &reaction); err != nil {
		return motion.Reaction{}, fmt.Errorf("react output: %w", err)
	}
	reaction.Raw = json.RawMessage(raw)
	reaction.State = string(emotion.Clamp(reaction.State))
	if strings.TrimSpace(reaction.Reply) == "" {
		return motion.Reaction{}, fmt.Errorf("react output missing reply")
	}
	return reaction, nil
}

// extractJSONObject pulls the first {...} block out of a model reply so stray
// prose around the JSON never breaks parsing.
func extractJSONObject(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("missing json object")
	}
	return trimmed[start : end+1], nil
}

func decodeJSONObject(content string, out interface{}) error {
	raw, err := extractJSONObject(content)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), out)
}

func imageDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image %s: %w", path, err)
	}

	mime := "image/jpeg"
	if strings.EqualFold(filepath.Ext(path), ".png") {
		mime = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data)), nil
}
