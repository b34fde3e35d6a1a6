package functions

import (
	"log"

	"google.golang.org/genai"
)

const NodeSetupGuideName = "GetNodeSetupGuide"

// NodeSetupGuideFunctionDeclaration returns the function declaration for Gemini
func NodeSetupGuideFunctionDeclaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        NodeSetupGuideName,
		Description: "Get the current instructions for joining the Gensyn testnet by running an RL Swarm node, including the hosted option and why to participate.",
	}
}

var nodeSetupGuide = `
Run a Node: you can join the swarm by running a node on your own computer
(Windows, macOS, or Linux). You'll need a Hugging Face account for a model.

Easy Mode (Octaspace): for an even simpler setup, a cloud service like
Octaspace deploys a Gensyn node for you in a few clicks.

Why Participate: by joining, you help improve the swarm's overall
intelligence. Your contributions are tracked on the Gensyn Testnet, and you
can keep the improved, locally trained model for your own applications.
`

// NodeSetupGuide returns how to join the testnet right now
func NodeSetupGuide() string {
	return nodeSetupGuide
}

// Tools returns every tool offered to the live model
func Tools() []*genai.Tool {
	return []*genai.Tool{
		{
			FunctionDeclarations: []*genai.FunctionDeclaration{
				NodeSetupGuideFunctionDeclaration(),
			},
		},
	}
}

// Handle answers one function call. Unknown functions yield nil so the caller
// can report them.
func Handle(fc *genai.FunctionCall) map[string]any {
	switch fc.Name {
	case NodeSetupGuideName:
		guide := NodeSetupGuide()
		log.Printf("🔧 Returning node setup guide (%d chars)", len(guide))
		return map[string]any{"output": guide}
	default:
		log.Printf("⚠️ No handler for function: %s", fc.Name)
		return nil
	}
}
