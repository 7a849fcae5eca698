//go:build js && wasm

package main

import (
	"encoding/json"
	"syscall/js"

	"github.com/holidaypuzzle/puzzle/backend-go/internal/geometry"
	"github.com/holidaypuzzle/puzzle/backend-go/internal/puzzle"
	"github.com/holidaypuzzle/puzzle/backend-go/internal/session"
)

func main() {
	kernel := js.Global().Get("Object").New()

	kernel.Set("samplePath", js.FuncOf(samplePath))
	kernel.Set("buildLayout", js.FuncOf(buildLayout))
	kernel.Set("allowedDistance", js.FuncOf(allowedDistance))

	// Register on global scope
	js.Global().Set("puzzleKernel", kernel)

	// Signal that WASM is ready
	js.Global().Set("puzzleWasmReady", js.ValueOf(true))

	// Keep Go runtime alive
	select {}
}

// samplePath(d) returns the sampled polyline as a JSON array of {x, y}.
func samplePath(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || args[0].Type() != js.TypeString {
		return errorResult("missing path data")
	}
	points, err := geometry.SamplePath(args[0].String())
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(points)
}

// buildLayout(svg, name?) runs the server's definition pipeline over SVG
// text and returns the layout JSON, identical to GET /api/puzzle.
func buildLayout(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || args[0].Type() != js.TypeString {
		return errorResult("missing svg text")
	}
	name := puzzle.DefaultAssetName
	if len(args) > 1 && args[1].Type() == js.TypeString {
		name = args[1].String()
	}

	def, err := puzzle.Build(name, []byte(args[0].String()), nil)
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(def.Layout())
}

// allowedDistance(tolerance, clientTolerance?) mirrors the server's check.
func allowedDistance(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf(0)
	}
	var client *float64
	if len(args) > 1 && args[1].Type() == js.TypeNumber {
		v := args[1].Float()
		client = &v
	}
	return js.ValueOf(session.AllowedDistance(args[0].Float(), client))
}

func jsonResult(v interface{}) interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResult(err.Error())
	}
	return js.ValueOf(map[string]interface{}{"ok": true, "json": string(data)})
}

func errorResult(msg string) interface{} {
	return js.ValueOf(map[string]interface{}{"error": msg})
}
