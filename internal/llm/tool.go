package llm

import (
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// ToolExecutePython is the single tool declared to the model.
const ToolExecutePython = "execute_python_code"

// executePythonTool declares the code execution tool. The sandbox exposes
// pd (pandas), json and the filename variable; the code must read the CSV
// itself, set a result variable and set a plot_config variable with a
// Plotly-style {data, layout} object.
func executePythonTool() openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name: ToolExecutePython,
			Description: "Execute Python code for data analysis and visualization. " +
				"Start by reading the data: df = pd.read_csv(filename). " +
				"Set the 'result' variable with the computed answer and the " +
				"'plot_config' variable with a Plotly chart configuration " +
				"({\"data\": [...], \"layout\": {...}}, template plotly_dark, " +
				"descriptive axis titles, margins {\"l\": 60, \"r\": 40, \"t\": 80, \"b\": 60}). " +
				"Available: pd (pandas), json, filename. Convert date columns to " +
				"strings before adding them to plot_config. Do not use backslash " +
				"line continuations.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"code": {
						Type:        jsonschema.String,
						Description: "Python code to execute. Must read the CSV, compute result, and create plot_config.",
					},
					"description": {
						Type:        jsonschema.String,
						Description: "Brief description of what this code does.",
					},
					"filename": {
						Type:        jsonschema.String,
						Description: "The absolute path to the CSV file to analyze.",
					},
				},
				Required: []string{"code", "description", "filename"},
			},
		},
	}
}
