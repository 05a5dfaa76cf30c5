package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Action step bounds per STAR example
const (
	MinActionSteps = 1
	MaxActionSteps = 5
)

// BlockEnvelopeVersion is the current on-disk shape of the blocks column.
// Version 1 stored each example as four newline-joined free-text strings;
// version 2 stores the structured shape below.
const BlockEnvelopeVersion = 2

// ActionStep is one concrete step inside an example's Action sub-section
type ActionStep struct {
	What    string `json:"what"`
	How     string `json:"how"`
	Outcome string `json:"outcome,omitempty"` // optional
}

// Situation describes where the example happened and the challenge faced
type Situation struct {
	Where     string `json:"where"`
	Challenge string `json:"challenge"`
}

// Task describes the user's responsibility and any constraints
type Task struct {
	Responsibility string `json:"responsibility"`
	Constraints    string `json:"constraints,omitempty"` // optional everywhere
}

// Action holds the ordered steps taken
type Action struct {
	Steps []ActionStep `json:"steps"`
}

// Result describes the outcome and who benefited
type Result struct {
	Outcome string `json:"outcome"`
	Benefit string `json:"benefit"`
}

// StarBlock is one repeated STAR example unit
type StarBlock struct {
	Situation Situation `json:"situation"`
	Task      Task      `json:"task"`
	Action    Action    `json:"action"`
	Result    Result    `json:"result"`
}

// NewStarBlock returns an empty block template with a single empty action step
func NewStarBlock() StarBlock {
	return StarBlock{
		Action: Action{Steps: []ActionStep{{}}},
	}
}

// BlockEnvelope is the versioned container persisted in the blocks column
type BlockEnvelope struct {
	Version int         `json:"version"`
	Blocks  []StarBlock `json:"blocks"`
}

// NewBlockEnvelope returns an envelope holding n empty block templates
func NewBlockEnvelope(n int) BlockEnvelope {
	blocks := make([]StarBlock, 0, n)
	for i := 0; i < n; i++ {
		blocks = append(blocks, NewStarBlock())
	}
	return BlockEnvelope{Version: BlockEnvelopeVersion, Blocks: blocks}
}

// Resize pads with empty block templates or truncates, preserving existing
// content by index. Truncated tail blocks are discarded permanently.
func (e *BlockEnvelope) Resize(n int) {
	if n < 0 {
		n = 0
	}
	for len(e.Blocks) < n {
		e.Blocks = append(e.Blocks, NewStarBlock())
	}
	if len(e.Blocks) > n {
		e.Blocks = e.Blocks[:n]
	}
	e.Version = BlockEnvelopeVersion
}

// Value implements driver.Valuer for the JSONB column
func (e BlockEnvelope) Value() (driver.Value, error) {
	if e.Version == 0 {
		e.Version = BlockEnvelopeVersion
	}
	return json.Marshal(e)
}

// Scan implements sql.Scanner. Legacy version-1 payloads are migrated to the
// structured shape here, once, on load.
func (e *BlockEnvelope) Scan(value interface{}) error {
	if value == nil {
		*e = BlockEnvelope{Version: BlockEnvelopeVersion}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for BlockEnvelope: %T", value)
	}

	migrated, err := MigrateBlockPayload(data)
	if err != nil {
		return err
	}
	*e = migrated
	return nil
}

// legacyBlock is the version-1 shape: four newline-joined free-text strings
// per example, action steps flattened into a "Step N: / How: / Outcome:" blob.
type legacyBlock struct {
	Situation string `json:"situation"`
	Task      string `json:"task"`
	Action    string `json:"action"`
	Result    string `json:"result"`
}

type legacyEnvelope struct {
	Version int           `json:"version"`
	Blocks  []legacyBlock `json:"blocks"`
}

// MigrateBlockPayload decodes a stored blocks payload of any known version
// and returns the current structured shape. Version-1 records (and bare
// arrays written before the envelope existed) are upgraded in place.
func MigrateBlockPayload(data []byte) (BlockEnvelope, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return BlockEnvelope{Version: BlockEnvelopeVersion}, nil
	}

	// Pre-envelope records stored a bare array of legacy blocks
	if strings.HasPrefix(trimmed, "[") {
		var legacy []legacyBlock
		if err := json.Unmarshal(data, &legacy); err != nil {
			return BlockEnvelope{}, fmt.Errorf("failed to decode legacy blocks array: %w", err)
		}
		return upgradeLegacyBlocks(legacy), nil
	}

	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return BlockEnvelope{}, fmt.Errorf("failed to probe blocks payload: %w", err)
	}

	if probe.Version <= 1 {
		var legacy legacyEnvelope
		if err := json.Unmarshal(data, &legacy); err != nil {
			return BlockEnvelope{}, fmt.Errorf("failed to decode v1 blocks payload: %w", err)
		}
		return upgradeLegacyBlocks(legacy.Blocks), nil
	}

	var envelope BlockEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return BlockEnvelope{}, fmt.Errorf("failed to decode blocks payload: %w", err)
	}
	return envelope, nil
}

func upgradeLegacyBlocks(legacy []legacyBlock) BlockEnvelope {
	blocks := make([]StarBlock, 0, len(legacy))
	for _, lb := range legacy {
		blocks = append(blocks, upgradeLegacyBlock(lb))
	}
	return BlockEnvelope{Version: BlockEnvelopeVersion, Blocks: blocks}
}

func upgradeLegacyBlock(lb legacyBlock) StarBlock {
	block := StarBlock{}

	block.Situation.Where, block.Situation.Challenge = splitTwoLines(lb.Situation)
	block.Task.Responsibility, block.Task.Constraints = splitTwoLines(lb.Task)
	block.Result.Outcome, block.Result.Benefit = splitTwoLines(lb.Result)
	block.Action.Steps = parseLegacyActionSteps(lb.Action)

	if len(block.Action.Steps) == 0 {
		block.Action.Steps = []ActionStep{{}}
	}
	return block
}

// splitTwoLines splits a legacy two-line field into its halves. Anything
// past the first newline belongs to the second half.
func splitTwoLines(s string) (string, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	parts := strings.SplitN(s, "\n", 2)
	first := strings.TrimSpace(parts[0])
	if len(parts) == 1 {
		return first, ""
	}
	return first, strings.TrimSpace(parts[1])
}

// parseLegacyActionSteps parses the flattened action blob:
//
//	Step 1: did the thing
//	How: with these tools
//	Outcome: it worked
//
//	Step 2: ...
//
// Blank lines separate steps; "How:" and "Outcome:" lines attach to the
// current step. Unprefixed lines extend the step description.
func parseLegacyActionSteps(blob string) []ActionStep {
	blob = strings.TrimSpace(blob)
	if blob == "" {
		return nil
	}

	var steps []ActionStep
	var current *ActionStep

	flush := func() {
		if current != nil {
			steps = append(steps, *current)
			current = nil
		}
	}

	for _, line := range strings.Split(blob, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			flush()
		case hasFoldPrefix(line, "step"):
			flush()
			current = &ActionStep{What: stripStepPrefix(line)}
		case hasFoldPrefix(line, "how:"):
			if current == nil {
				current = &ActionStep{}
			}
			current.How = strings.TrimSpace(line[len("how:"):])
		case hasFoldPrefix(line, "outcome:"):
			if current == nil {
				current = &ActionStep{}
			}
			current.Outcome = strings.TrimSpace(line[len("outcome:"):])
		default:
			if current == nil {
				current = &ActionStep{What: line}
			} else if current.What == "" {
				current.What = line
			} else {
				current.What += " " + line
			}
		}
	}
	flush()

	return steps
}

func hasFoldPrefix(line, prefix string) bool {
	return len(line) >= len(prefix) && strings.EqualFold(line[:len(prefix)], prefix)
}

// stripStepPrefix removes a leading "Step N:" marker
func stripStepPrefix(line string) string {
	if idx := strings.Index(line, ":"); idx >= 0 {
		return strings.TrimSpace(line[idx+1:])
	}
	return strings.TrimSpace(line)
}
