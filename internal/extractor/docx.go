package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"strings"
)

const docxBodyPart = "word/document.xml"

// xmlNode is a generic WordprocessingML element. Namespaces are ignored; only
// local names are matched.
type xmlNode struct {
	XMLName xml.Name
	Content string    `xml:",chardata"`
	Nodes   []xmlNode `xml:",any"`
}

func extractDOCX(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", invalid("failed to open DOCX archive", err)
	}

	var root xmlNode
	found := false
	for _, f := range zr.File {
		if f.Name != docxBodyPart {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", invalid("failed to open DOCX body", err)
		}
		err = xml.NewDecoder(rc).Decode(&root)
		rc.Close()
		if err != nil {
			return "", invalid("failed to parse DOCX body", err)
		}
		found = true
		break
	}
	if !found {
		return "", invalid("DOCX archive has no "+docxBodyPart, nil)
	}

	body := child(root, "body")
	if body == nil {
		return "", noText("no text could be extracted from DOCX")
	}

	var paragraphs, rows []string
	walkBlocks(body.Nodes, &paragraphs, &rows)

	var sb strings.Builder
	sb.WriteString(strings.Join(paragraphs, "\n\n"))
	if len(rows) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("--- Tables ---\n")
		sb.WriteString(strings.Join(rows, "\n"))
	}

	if strings.TrimSpace(sb.String()) == "" {
		return "", noText("no text could be extracted from DOCX")
	}
	return sb.String(), nil
}

// walkBlocks visits body-level paragraphs and tables in document order.
// Content controls are transparent.
func walkBlocks(nodes []xmlNode, paragraphs, rows *[]string) {
	for _, n := range nodes {
		switch n.XMLName.Local {
		case "p":
			if text := strings.TrimSpace(paragraphText(n)); text != "" {
				*paragraphs = append(*paragraphs, text)
			}
		case "tbl":
			*rows = append(*rows, tableRows(n)...)
		case "sdt":
			if content := child(n, "sdtContent"); content != nil {
				walkBlocks(content.Nodes, paragraphs, rows)
			}
		}
	}
}

func tableRows(tbl xmlNode) []string {
	var rows []string
	for _, tr := range tbl.Nodes {
		if tr.XMLName.Local != "tr" {
			continue
		}
		var cells []string
		for _, tc := range tr.Nodes {
			if tc.XMLName.Local != "tc" {
				continue
			}
			var lines []string
			for _, p := range tc.Nodes {
				if p.XMLName.Local == "p" {
					lines = append(lines, paragraphText(p))
				}
			}
			if cell := strings.TrimSpace(strings.Join(lines, "\n")); cell != "" {
				cells = append(cells, cell)
			}
		}
		if len(cells) > 0 {
			rows = append(rows, strings.Join(cells, " | "))
		}
	}
	return rows
}

func paragraphText(p xmlNode) string {
	var sb strings.Builder
	var walk func(n xmlNode)
	walk = func(n xmlNode) {
		switch n.XMLName.Local {
		case "t":
			sb.WriteString(n.Content)
			return
		case "tab":
			sb.WriteByte('\t')
			return
		case "br", "cr":
			sb.WriteByte('\n')
			return
		case "pPr", "rPr", "delText", "instrText":
			return
		case "AlternateContent", "drawing", "pict", "txbxContent":
			// Text boxes and shapes are not part of the paragraph's own text.
			return
		}
		for _, c := range n.Nodes {
			walk(c)
		}
	}
	for _, c := range p.Nodes {
		walk(c)
	}
	return sb.String()
}

func child(n xmlNode, local string) *xmlNode {
	for i := range n.Nodes {
		if n.Nodes[i].XMLName.Local == local {
			return &n.Nodes[i]
		}
	}
	return nil
}
