package corpus

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

const logExtension = ".jsonl"

// ErrCorpusMissing is returned when the corpus root does not exist.
var ErrCorpusMissing = errors.New("corpus: root directory missing")

// Loader discovers project directories under a root and streams their
// transcript files into Conversations. One Loader is used per Load/Reload
// call; building a Corpus never mutates a previously returned one.
type Loader struct {
	Root string
}

// NewLoader returns a Loader rooted at root.
func NewLoader(root string) *Loader {
	return &Loader{Root: root}
}

type discoveredFile struct {
	path    string
	project string
}

// Load walks Root and builds a fresh Corpus from scratch. Per-file errors
// are recovered as Diagnostics; only a missing root fails the whole call.
func (l *Loader) Load(ctx context.Context) (*Corpus, error) {
	info, err := os.Stat(l.Root)
	if err != nil || !info.IsDir() {
		return nil, ErrCorpusMissing
	}

	files, err := l.discover()
	if err != nil {
		return nil, fmt.Errorf("corpus: discover files: %w", err)
	}

	contentHash, err := hashFiles(files)
	if err != nil {
		return nil, fmt.Errorf("corpus: hash files: %w", err)
	}

	if len(files) == 0 {
		return &Corpus{Root: l.Root, Hash: contentHash}, nil
	}

	workers := runtime.GOMAXPROCS(0)
	if workers < 1 {
		workers = 1
	}
	if workers > len(files) {
		workers = len(files)
	}

	results := make([]*Conversation, len(files))
	diagSets := make([][]Diagnostic, len(files))

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for idx, f := range files {
		idx, f := idx, f
		group.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			conv, diags, err := l.loadFile(f)
			if err != nil {
				diagSets[idx] = []Diagnostic{{Path: f.path, Kind: DiagFileUnreadable, Detail: err.Error()}}
				return nil
			}
			results[idx] = conv
			diagSets[idx] = diags
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("corpus: load: %w", err)
	}

	corpusResult := &Corpus{Root: l.Root, Hash: contentHash}
	for idx := range files {
		if conv := results[idx]; conv != nil {
			corpusResult.Conversations = append(corpusResult.Conversations, conv)
		}
		corpusResult.Diagnostics = append(corpusResult.Diagnostics, diagSets[idx]...)
	}

	sort.Slice(corpusResult.Conversations, func(i, j int) bool {
		return corpusResult.Conversations[i].ID < corpusResult.Conversations[j].ID
	})

	return corpusResult, nil
}

// discover returns every <root>/<project>/<id>.jsonl file, one project per
// immediate subdirectory of Root.
func (l *Loader) discover() ([]discoveredFile, error) {
	entries, err := os.ReadDir(l.Root)
	if err != nil {
		return nil, err
	}

	var files []discoveredFile
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		project := entry.Name()
		projectDir := filepath.Join(l.Root, project)

		children, err := os.ReadDir(projectDir)
		if err != nil {
			continue // unreadable project dir: skip, not fatal
		}
		for _, child := range children {
			if child.IsDir() {
				continue
			}
			if filepath.Ext(child.Name()) != logExtension {
				continue
			}
			files = append(files, discoveredFile{
				path:    filepath.Join(projectDir, child.Name()),
				project: project,
			})
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	return files, nil
}

// loadFile streams one transcript file line by line without loading it
// wholesale, tolerating malformed lines.
func (l *Loader) loadFile(f discoveredFile) (*Conversation, []Diagnostic, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	id := idFromFilename(f.path)
	conv := &Conversation{
		ID:                 id,
		Project:            f.project,
		MessageCountByRole: make(map[Role]int),
		ToolNames:          make(map[string]struct{}),
		Models:             make(map[string]struct{}),
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	malformed := 0
	total := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(trimNonJSONWhitespace(line)) == 0 {
			continue
		}
		total++
		res := parseLine(line)
		if res.malformed {
			malformed++
			continue
		}
		if res.message == nil {
			continue
		}
		appendMessage(conv, *res.message)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}

	var diags []Diagnostic
	if malformed > 0 {
		diags = append(diags, Diagnostic{Path: f.path, Kind: DiagMalformedLine, Detail: fmt.Sprintf("%d malformed line(s)", malformed)})
	}
	if len(conv.Messages) == 0 {
		diags = append(diags, Diagnostic{Path: f.path, Kind: DiagEmptyFile, Detail: "no parseable records"})
		return nil, diags, nil
	}

	finalizeConversation(conv)
	return conv, diags, nil
}

func appendMessage(conv *Conversation, msg Message) {
	conv.Messages = append(conv.Messages, msg)
	conv.MessageCountByRole[msg.Role]++
	if msg.Model != "" {
		conv.Models[msg.Model] = struct{}{}
	}
	for _, b := range msg.Blocks {
		if b.Kind == BlockToolUse || b.Kind == BlockToolResp {
			if b.ToolName != "" {
				conv.ToolNames[b.ToolName] = struct{}{}
			}
		}
	}
	if msg.HasTime {
		if !conv.HasTime || msg.Timestamp.Before(conv.FirstTS) {
			conv.FirstTS = msg.Timestamp
		}
		if !conv.HasTime || msg.Timestamp.After(conv.LastTS) {
			conv.LastTS = msg.Timestamp
		}
		conv.HasTime = true
	}
}

func finalizeConversation(conv *Conversation) {
	if conv.HasTime {
		conv.Duration = conv.LastTS.Sub(conv.FirstTS)
		if conv.Duration < 0 {
			conv.Duration = 0
		}
	}
}

func idFromFilename(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

// hashFiles computes the 64-bit content hash over (path, size, mtime) of
// every discovered file, per spec.md §3's Corpus hash definition.
func hashFiles(files []discoveredFile) (uint64, error) {
	h := fnv.New64a()
	var mu sync.Mutex

	for _, f := range files {
		info, err := os.Stat(f.path)
		if err != nil {
			continue // file vanished between discovery and hashing: ignore
		}
		mu.Lock()
		fmt.Fprintf(h, "%s|%d|%d\n", f.path, info.Size(), info.ModTime().UnixNano())
		mu.Unlock()
	}
	return h.Sum64(), nil
}
