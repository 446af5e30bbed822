package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"plaza/server/internal/proto"
)

// wireMessages enumerates every frame exchanged on the presence channel so
// the generated schema covers the whole contract.
type wireMessages struct {
	ClientMessage    proto.ClientMessage    `json:"clientMessage"`
	JoinResponse     proto.JoinResponse     `json:"joinResponse"`
	RosterDelta      proto.RosterDelta      `json:"rosterDelta"`
	OnlineRoster     proto.OnlineRoster     `json:"onlineRoster"`
	AllStates        proto.AllStates        `json:"allStates"`
	StateUpdated     proto.StateUpdated     `json:"stateUpdated"`
	OnlineCountReply proto.OnlineCountReply `json:"onlineCountReply"`
}

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	schema := buildSchema()

	if err := writeSchema(outPath, schema); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(wireMessages))
	schema.Title = "Plaza Presence Wire Protocol"
	schema.Description = fmt.Sprintf("Message frames for wire-protocol version %d", proto.Version)
	return schema
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}

	return nil
}
