package agent

import (
	"context"
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// Tool is a named, schema-described callable action the model may invoke.
// Implementations return a JSON-serialisable result; errors are surfaced to
// the model as tool-result payloads, not to the user.
type Tool interface {
	Name() string
	Description() string
	Parameters() jsonschema.Definition
	Call(ctx context.Context, args json.RawMessage) (any, error)
}

// declarations converts tools to the wire form of the function-calling API.
func declarations(tools []Tool) []openai.Tool {
	decls := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return decls
}
