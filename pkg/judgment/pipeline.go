// Package judgment turns a completed session narrative into a verdict in
// two mandatory phases. Sanitization first strips tone and emotion into a
// neutral factual record; the verdict phase then sees only that record,
// never the raw narrative. The ordering and that isolation are deliberate
// bias-reduction measures.
package judgment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/parley-labs/parley/pkg/config"
	"github.com/parley-labs/parley/pkg/contracts"
	"github.com/parley-labs/parley/pkg/llm"
	"github.com/parley-labs/parley/pkg/mediation"
)

// Pipeline holds the two generation phases and their tuning.
type Pipeline struct {
	engine   llm.Client
	sanitize config.GenerationParams
	verdict  config.GenerationParams
	logger   *slog.Logger
}

func NewPipeline(engine llm.Client, tuning *config.TuningProfile, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		engine:   engine,
		sanitize: tuning.Sanitize,
		verdict:  tuning.Judgment,
		logger:   logger,
	}
}

// Run executes both phases and returns the terminal judgment. The returned
// error is non-nil only when the verdict phase failed for a reason worth
// retrying (the triggering action can be re-delivered); every other failure
// degrades to deterministic content instead.
func (p *Pipeline) Run(ctx context.Context, sess *contracts.Session, prof *contracts.Profile, ev mediation.Evidence) (*contracts.Judgment, error) {
	record := p.Sanitize(ctx, sess, ev)
	return p.Decide(ctx, sess, record, prof, ev)
}

func (p *Pipeline) generate(ctx context.Context, params config.GenerationParams, system, user string, images []llm.Image) (string, error) {
	return p.engine.Generate(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: user},
		},
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
		Images:      images,
	})
}

// validate checks a completion against the phase's expected JSON shape
// before anything downstream trusts it. A schema violation is a generation
// failure, not a crash.
func validate(schema *jsonschema.Schema, text string) error {
	var doc any
	if err := json.Unmarshal([]byte(llm.StripFences(text)), &doc); err != nil {
		return fmt.Errorf("%w: decode completion: %v", llm.ErrGeneration, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: completion shape: %v", llm.ErrGeneration, err)
	}
	return nil
}

func mustCompile(name, src string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, strings.NewReader(src)); err != nil {
		panic(err)
	}
	return c.MustCompile(name)
}
