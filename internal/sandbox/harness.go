package sandbox

import (
	"encoding/json"
	"fmt"
)

// resultMarker separates anything the worker manages to write from the
// structured result payload. Only the JSON after the final marker is
// trusted.
const resultMarker = "<<<DATAPILOT_RESULT>>>"

// harnessTemplate is the Python program each worker runs. It compiles the
// generated code first so syntax errors are reported with their line
// number, executes it under an allow-listed builtin table with pd, json
// and filename as the only ambient names, captures stdout, reads back the
// result and plot_config bindings, and emits a single JSON payload after
// the marker. All library-specific values (numpy scalars and arrays,
// timestamps, NaN) are flattened to plain JSON before crossing back.
const harnessTemplate = `
import io
import json
import math
import sys

CODE = json.loads(%s)
FILENAME = json.loads(%s)

ALLOWED_BUILTINS = {
    "range": range, "len": len, "str": str, "int": int, "float": float,
    "bool": bool, "list": list, "dict": dict, "set": set, "tuple": tuple,
    "sum": sum, "min": min, "max": max, "abs": abs, "round": round,
    "sorted": sorted, "enumerate": enumerate, "zip": zip, "print": print,
    "isinstance": isinstance, "type": type, "map": map, "filter": filter,
    "True": True, "False": False, "None": None,
    "__import__": __import__,
}


def _sanitize(obj):
    if obj is None or isinstance(obj, (str, bool, int)):
        return obj
    if isinstance(obj, float):
        return None if (math.isnan(obj) or math.isinf(obj)) else obj
    if isinstance(obj, dict):
        return {str(k): _sanitize(v) for k, v in obj.items()}
    if isinstance(obj, (list, tuple)):
        return [_sanitize(v) for v in obj]
    if hasattr(obj, "isoformat"):
        return obj.isoformat()
    if hasattr(obj, "item"):
        return _sanitize(obj.item())
    if hasattr(obj, "tolist"):
        return _sanitize(obj.tolist())
    if hasattr(obj, "to_dict"):
        return _sanitize(obj.to_dict())
    return str(obj)


def main():
    try:
        compiled = compile(CODE, "<generated>", "exec")
    except SyntaxError as e:
        return {
            "ok": False,
            "kind": "syntax",
            "line": e.lineno or 0,
            "error": "Syntax Error at line %%s: %%s" %% (e.lineno, e.msg),
            "stdout": "",
        }

    import pandas as pd

    globals_table = {"pd": pd, "json": json, "__builtins__": ALLOWED_BUILTINS}
    locals_table = {"filename": FILENAME}

    buf = io.StringIO()
    old_stdout = sys.stdout
    sys.stdout = buf
    try:
        exec(compiled, globals_table, locals_table)
    except Exception as e:
        return {
            "ok": False,
            "kind": "runtime",
            "error": "Execution error: %%s: %%s" %% (type(e).__name__, e),
            "stdout": buf.getvalue(),
        }
    finally:
        sys.stdout = old_stdout

    return {
        "ok": True,
        "result": _sanitize(locals_table.get("result")),
        "plot_config": _sanitize(locals_table.get("plot_config")),
        "stdout": buf.getvalue(),
    }


payload = main()
sys.stdout.write("\n%s\n")
sys.stdout.write(json.dumps(payload, default=str))
sys.stdout.flush()
`

// buildHarness renders the harness with the generated code and dataset
// path embedded as JSON string literals, so arbitrary code text cannot
// escape into the harness itself.
func buildHarness(code, filename string) (string, error) {
	codeLit, err := pyStringLiteral(code)
	if err != nil {
		return "", err
	}
	fileLit, err := pyStringLiteral(filename)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(harnessTemplate, codeLit, fileLit, resultMarker), nil
}

// pyStringLiteral double-encodes a value: the outer JSON string is a valid
// Python literal, and the harness json.loads the inner payload.
func pyStringLiteral(s string) (string, error) {
	inner, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode harness literal: %w", err)
	}
	outer, err := json.Marshal(string(inner))
	if err != nil {
		return "", fmt.Errorf("encode harness literal: %w", err)
	}
	return string(outer), nil
}

// harnessPayload is the structured result emitted after the marker.
type harnessPayload struct {
	OK     bool   `json:"ok"`
	Kind   string `json:"kind"`
	Line   int    `json:"line"`
	Error  string `json:"error"`
	Stdout string `json:"stdout"`
	Result any    `json:"result"`
	Plot   any    `json:"plot_config"`
}
