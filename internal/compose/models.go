package compose

import (
	"bufio"
	"bytes"
	"context"
	"strings"
)

// ModelServer lists the models an Ollama service currently has available.
type ModelServer struct {
	Client  *Client
	Service string
}

// ListModels runs "ollama list" inside the service.
func (m ModelServer) ListModels(ctx context.Context) ([]string, error) {
	out, err := m.Client.Exec(ctx, m.Service, "ollama", "list")
	if err != nil {
		return nil, err
	}
	return ParseModelList(out), nil
}

// ParseModelList extracts model names from "ollama list" output. The first
// line is a header (NAME ID SIZE MODIFIED).
func ParseModelList(out []byte) []string {
	var names []string
	s := bufio.NewScanner(bytes.NewReader(out))
	first := true
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if first {
			first = false
			if strings.EqualFold(fields[0], "NAME") {
				continue
			}
		}
		names = append(names, fields[0])
	}
	return names
}
