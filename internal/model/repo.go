package model

import "time"

// Repository holds the GitHub metadata rendered by the dashboard
type Repository struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Owner         string     `json:"owner"`
	FullName      string     `json:"full_name"`
	Description   string     `json:"description,omitempty"`
	Language      string     `json:"language,omitempty"`
	DefaultBranch string     `json:"default_branch"`
	Stars         int        `json:"stars"`
	Forks         int        `json:"forks"`
	Private       bool       `json:"private"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	PushedAt      *time.Time `json:"pushed_at,omitempty"`
}

// VisualKind identifies the format of a documentation file under VISUALS/
type VisualKind string

const (
	VisualKindMarkdown VisualKind = "markdown"
	VisualKindMermaid  VisualKind = "mermaid"
	VisualKindYAML     VisualKind = "yaml"
)

// VisualSection is one heading-delimited block of a markdown visual
type VisualSection struct {
	Heading string `json:"heading"`
	Level   int    `json:"level"`
	Body    string `json:"body"`
	Diagram bool   `json:"diagram"`
}

// VisualDoc is a parsed documentation/diagram file from a repo's
// VISUALS/ folder
type VisualDoc struct {
	Path     string                 `json:"path"`
	Title    string                 `json:"title"`
	Kind     VisualKind             `json:"kind"`
	Sections []VisualSection        `json:"sections,omitempty"`
	Document map[string]interface{} `json:"document,omitempty"`
	Size     int                    `json:"size"`
}
