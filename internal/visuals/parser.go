package visuals

import (
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/repolens/repolens/internal/model"
)

// Parser turns raw VISUALS/ files into structured documents. Markdown files
// are split on headings, fenced mermaid blocks are flagged as diagram
// sections, and YAML files are decoded into a generic document map.
type Parser struct {
	logger *zap.Logger
}

// NewParser creates a new visuals parser
func NewParser(logger *zap.Logger) *Parser {
	return &Parser{logger: logger.Named("visuals")}
}

// Parse parses one file by extension. Unsupported extensions and malformed
// YAML return an error; callers treat a parse failure as "file absent" and
// degrade gracefully.
func (p *Parser) Parse(filePath, content string) (*model.VisualDoc, error) {
	switch strings.ToLower(path.Ext(filePath)) {
	case ".md", ".markdown":
		return p.parseMarkdown(filePath, content), nil
	case ".mmd", ".mermaid":
		return p.parseMermaid(filePath, content), nil
	case ".yaml", ".yml":
		return p.parseYAML(filePath, content)
	default:
		return nil, fmt.Errorf("unsupported visual file type: %s", filePath)
	}
}

// parseMarkdown splits the document on # and ## headings. Text before the
// first heading becomes an untitled preamble section.
func (p *Parser) parseMarkdown(filePath, content string) *model.VisualDoc {
	doc := &model.VisualDoc{
		Path: filePath,
		Kind: model.VisualKindMarkdown,
		Size: len(content),
	}

	current := model.VisualSection{}
	var body []string
	inFence := false
	fenceIsMermaid := false

	flush := func() {
		current.Body = strings.TrimSpace(strings.Join(body, "\n"))
		if current.Heading != "" || current.Body != "" {
			doc.Sections = append(doc.Sections, current)
		}
		body = nil
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			if !inFence {
				inFence = true
				fenceIsMermaid = strings.Contains(trimmed, "mermaid")
				if fenceIsMermaid {
					current.Diagram = true
				}
			} else {
				inFence = false
				fenceIsMermaid = false
			}
			body = append(body, line)
			continue
		}

		if !inFence && strings.HasPrefix(trimmed, "#") {
			level := headingLevel(trimmed)
			if level >= 1 && level <= 2 {
				flush()
				current = model.VisualSection{
					Heading: strings.TrimSpace(trimmed[level:]),
					Level:   level,
				}
				if doc.Title == "" {
					doc.Title = current.Heading
				}
				continue
			}
		}

		body = append(body, line)
	}
	flush()

	if doc.Title == "" {
		doc.Title = path.Base(filePath)
	}
	return doc
}

// parseMermaid wraps a bare mermaid file as a single diagram section
func (p *Parser) parseMermaid(filePath, content string) *model.VisualDoc {
	return &model.VisualDoc{
		Path:  filePath,
		Title: path.Base(filePath),
		Kind:  model.VisualKindMermaid,
		Size:  len(content),
		Sections: []model.VisualSection{{
			Heading: path.Base(filePath),
			Level:   1,
			Body:    strings.TrimSpace(content),
			Diagram: true,
		}},
	}
}

func (p *Parser) parseYAML(filePath, content string) (*model.VisualDoc, error) {
	document := make(map[string]interface{})
	if err := yaml.Unmarshal([]byte(content), &document); err != nil {
		p.logger.Warn("Failed to parse visual YAML",
			zap.String("path", filePath),
			zap.Error(err))
		return nil, fmt.Errorf("failed to parse %s: %w", filePath, err)
	}

	title := path.Base(filePath)
	if t, ok := document["title"].(string); ok && t != "" {
		title = t
	}

	return &model.VisualDoc{
		Path:     filePath,
		Title:    title,
		Kind:     model.VisualKindYAML,
		Document: document,
		Size:     len(content),
	}, nil
}

func headingLevel(line string) int {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level < len(line) && line[level] != ' ' {
		return 0
	}
	return level
}
