package image

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Entry pairs an image directory with its loaded manifest.
type Entry struct {
	ID       string
	Dir      string
	Manifest *Manifest
}

// List loads every image under the image root, skipping directories
// without a readable manifest. Results are sorted by directory name.
func List(imageRoot string) ([]Entry, error) {
	dirs, err := os.ReadDir(imageRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list images: %w", err)
	}

	var out []Entry
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		dir := filepath.Join(imageRoot, d.Name())
		m, err := LoadManifest(dir)
		if err != nil {
			continue
		}
		out = append(out, Entry{ID: d.Name(), Dir: dir, Manifest: m})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Resolve maps a user-supplied reference to one image. An exact
// directory name wins, then a unique directory-name prefix, then a
// repo:tag match against the manifests.
func Resolve(imageRoot, token string) (Entry, error) {
	entries, err := List(imageRoot)
	if err != nil {
		return Entry{}, err
	}

	var prefix []Entry
	for _, e := range entries {
		if e.ID == token {
			return e, nil
		}
		if strings.HasPrefix(e.ID, token) {
			prefix = append(prefix, e)
		}
	}
	if len(prefix) == 1 {
		return prefix[0], nil
	}
	if len(prefix) > 1 {
		return Entry{}, fmt.Errorf("image reference %q is ambiguous: %s", token, joinIDs(prefix))
	}

	want := ParseRepoTag(token).String()
	var tagged []Entry
	for _, e := range entries {
		for _, t := range e.Manifest.RepoTags {
			if ParseRepoTag(t).String() == want {
				tagged = append(tagged, e)
				break
			}
		}
	}
	switch len(tagged) {
	case 1:
		return tagged[0], nil
	case 0:
		return Entry{}, fmt.Errorf("no image matches %q", token)
	default:
		return Entry{}, fmt.Errorf("tag %q matches several images: %s", token, joinIDs(tagged))
	}
}

func joinIDs(entries []Entry) string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return strings.Join(ids, ", ")
}
