// Package seed loads chat fixtures into the store for development, standing
// in for the external membership service.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vovakirdan/chatsync/internal/store"
)

// Chat is one fixture entry.
type Chat struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Group   bool     `yaml:"group"`
	Members []string `yaml:"members"`
}

// Fixtures is the top-level fixture document.
type Fixtures struct {
	Chats []Chat `yaml:"chats"`
}

// Decode parses a fixture document.
func Decode(r io.Reader) (Fixtures, error) {
	var f Fixtures
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return Fixtures{}, fmt.Errorf("decode fixtures: %w", err)
	}
	for i, c := range f.Chats {
		if len(c.Members) == 0 {
			return Fixtures{}, fmt.Errorf("chat #%d (%s): members are required", i, c.ID)
		}
	}
	return f, nil
}

// LoadFile reads fixtures from path.
func LoadFile(path string) (Fixtures, error) {
	file, err := os.Open(path)
	if err != nil {
		return Fixtures{}, fmt.Errorf("open fixtures: %w", err)
	}
	defer file.Close()
	return Decode(file)
}

// Result counts what Apply changed.
type Result struct {
	Created      int
	MembersAdded int
	// Changed lists chats whose membership changed and need cache invalidation.
	Changed []string
}

// Apply creates missing chats and adds missing members. Existing members are
// never removed.
func Apply(ctx context.Context, st store.ChatStore, f Fixtures) (Result, error) {
	var res Result
	for _, c := range f.Chats {
		if c.ID != "" {
			existing, err := st.GetChat(ctx, c.ID)
			switch {
			case err == nil:
				added, err := addMissing(ctx, st, existing, c.Members)
				if err != nil {
					return res, err
				}
				if added > 0 {
					res.MembersAdded += added
					res.Changed = append(res.Changed, c.ID)
				}
				continue
			case !errors.Is(err, store.ErrNotFound):
				return res, fmt.Errorf("get chat %s: %w", c.ID, err)
			}
		}

		chat := &store.Chat{ID: c.ID, Name: c.Name, IsGroup: c.Group, Members: c.Members}
		if err := st.CreateChat(ctx, chat); err != nil {
			return res, fmt.Errorf("create chat %s: %w", c.Name, err)
		}
		res.Created++
	}
	return res, nil
}

func addMissing(ctx context.Context, st store.ChatStore, chat *store.Chat, members []string) (int, error) {
	have := make(map[string]bool, len(chat.Members))
	for _, m := range chat.Members {
		have[m] = true
	}
	added := 0
	for _, m := range members {
		if have[m] {
			continue
		}
		if err := st.AddMember(ctx, chat.ID, m); err != nil {
			return added, fmt.Errorf("add member %s to %s: %w", m, chat.ID, err)
		}
		have[m] = true
		added++
	}
	return added, nil
}
