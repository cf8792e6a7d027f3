//go:build bedrock

package ai

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/Miles0sage/agentgate/core"
)

// minimaxAdapter routes MiniMax models through AWS Bedrock's Converse API,
// following the teacher's ai/providers/bedrock/client.go. This file carries
// the "bedrock" build tag exactly as the teacher does, keeping the
// aws-sdk-go-v2 dependency optional for builds that never configure a
// minimax agent.
type minimaxAdapter struct {
	client *bedrockruntime.Client
}

func init() {
	MustRegister(core.ProviderMiniMax, func(cfg AdapterConfig) (Adapter, error) {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("minimax: loading AWS config: %w", err)
		}
		return &minimaxAdapter{client: bedrockruntime.NewFromConfig(awsCfg)}, nil
	})
}

func (m *minimaxAdapter) SupportsTools() bool { return false }

func (m *minimaxAdapter) Generate(ctx context.Context, model, systemPrompt string, messages []core.Message, opts GenerateOptions) (GenerateResult, error) {
	converseMessages := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		role := types.ConversationRoleUser
		if msg.Role == "assistant" {
			role = types.ConversationRoleAssistant
		}
		converseMessages = append(converseMessages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: msg.Content}},
		})
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(model),
		Messages: converseMessages,
	}
	if systemPrompt != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: systemPrompt}}
	}

	out, err := m.client.Converse(ctx, input)
	if err != nil {
		return GenerateResult{}, core.NewGatewayError("ai.minimax.Generate", core.ErrKindUpstreamFailed, err)
	}

	var text string
	if msg, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			if tb, ok := block.(*types.ContentBlockMemberText); ok {
				text += tb.Value
			}
		}
	}

	result := GenerateResult{Text: text}
	if out.Usage != nil {
		result.InputTokens = int(aws.ToInt32(out.Usage.InputTokens))
		result.OutputTokens = int(aws.ToInt32(out.Usage.OutputTokens))
	}
	return result, nil
}
