// Package models defines data models for scripts, executions, and schedules.
package models

import "time"

// ParameterType is the declared type of a script parameter.
type ParameterType string

const (
	// TypeString is the default parameter type.
	TypeString ParameterType = "string"
	// TypeNumber covers integer and floating point declarations.
	TypeNumber ParameterType = "number"
	// TypeBoolean covers switch and bool declarations.
	TypeBoolean ParameterType = "boolean"
	// TypeEnum is a parameter restricted to a closed value set.
	TypeEnum ParameterType = "enum"
)

// Parameter describes one declared script parameter.
type Parameter struct {
	Name        string        `json:"name"`
	Type        ParameterType `json:"type"`
	Mandatory   bool          `json:"mandatory"`
	Description string        `json:"description"`
	Default     string        `json:"default,omitempty"`
	ValidValues []string      `json:"valid_values,omitempty"`
}

// Example is one usage example from a script's help block.
type Example struct {
	Title   string `json:"title"`
	Code    string `json:"code"`
	Remarks string `json:"remarks,omitempty"`
}

// Metadata is the parsed documentation fragment of a script. Every field is
// best-effort: sections the parser cannot recognize are left at their zero
// value.
type Metadata struct {
	Synopsis    string      `json:"synopsis"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Examples    []Example   `json:"examples"`
	Notes       string      `json:"notes,omitempty"`
	Author      string      `json:"author,omitempty"`
	Version     string      `json:"version,omitempty"`
	Requires    []string    `json:"requires,omitempty"`
}

// Script is one cataloged script: its identity on disk plus parsed metadata.
// The relative path is the stable key used across the API, history, and
// schedules.
type Script struct {
	Path          string    `json:"path"`
	Name          string    `json:"name"`
	Filename      string    `json:"filename"`
	Category      string    `json:"category"`
	CategoryLabel string    `json:"category_label"`
	CategoryIcon  string    `json:"category_icon"`
	Size          int64     `json:"size"`
	Modified      time.Time `json:"modified"`
	Metadata
}

// Category is a browsable grouping of scripts derived from a directory name.
type Category struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
	Count       int    `json:"count"`
}

// ExecuteRequest is the payload for running a script.
type ExecuteRequest struct {
	ScriptPath string         `json:"script_path" binding:"required"`
	Parameters map[string]any `json:"parameters"`
}
