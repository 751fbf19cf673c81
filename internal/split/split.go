package split

import (
	"fmt"
	"strings"

	"github.com/quillgen/quill/internal/tokens"
)

// SplitLevel records the granularity at which a chunk boundary was chosen.
// It is surfaced in prompts so the model knows how complete its view is.
type SplitLevel string

// Split levels, coarsest first.
const (
	LevelFile SplitLevel = "file"
	LevelHunk SplitLevel = "hunk"
	LevelLine SplitLevel = "line"
)

// Context carries the descriptive metadata attached to a chunk.
type Context struct {
	// FileHeader is the diff header block for the owning file, so a chunk
	// remains self-describing even when it contains only a slice of hunks.
	FileHeader string
	// Function is the enclosing function name from the hunk marker, when
	// git recorded one.
	Function string
	// RelatedFiles lists the other files merged into this chunk, when the
	// greedy merge pass combined several small files.
	RelatedFiles []string
}

// Chunk is one bounded unit of diff text submitted to the map stage.
// Chunks are immutable once produced.
type Chunk struct {
	Content  string
	FilePath string
	Index    int
	Total    int
	Level    SplitLevel
	Context  Context
}

const fileMarker = "diff --git "

// Splitter partitions diff text into chunks that fit a token budget.
type Splitter struct {
	est *tokens.Estimator
}

// New creates a Splitter using the given estimator for budget checks.
func New(est *tokens.Estimator) *Splitter {
	return &Splitter{est: est}
}

// Split partitions text into chunks of at most maxTokens estimated tokens.
// The whole text is returned as a single chunk when it already fits. Chunk
// indices are contiguous from 0 and Total equals the returned length.
func (s *Splitter) Split(text string, maxTokens int) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	sections := splitFileSections(text)

	var chunks []Chunk
	if s.est.Estimate(text) <= maxTokens {
		chunks = []Chunk{{
			Content:  text,
			FilePath: chunkLabel(sectionPaths(sections)),
			Level:    LevelFile,
			Context:  Context{RelatedFiles: sectionPaths(sections)},
		}}
		return renumber(chunks)
	}

	if len(sections) == 0 {
		// No file boundaries at all: treat the whole text as one file unit
		// and descend directly.
		sections = []fileSection{{path: "", lines: strings.Split(strings.TrimSuffix(text, "\n"), "\n")}}
	}

	for _, sec := range sections {
		chunks = append(chunks, s.splitFile(sec, maxTokens)...)
	}

	return renumber(s.mergeAdjacent(chunks, maxTokens))
}

// fileSection is one file's complete slice of the diff.
type fileSection struct {
	path  string
	lines []string
}

func (f fileSection) content() string {
	return strings.Join(f.lines, "\n") + "\n"
}

// header returns the lines from the diff --git marker through the +++ line.
func (f fileSection) header() []string {
	for i, line := range f.lines {
		if strings.HasPrefix(line, "+++ ") {
			return f.lines[:i+1]
		}
	}
	if len(f.lines) > 0 && strings.HasPrefix(f.lines[0], fileMarker) {
		return f.lines[:1]
	}
	return nil
}

// splitFile emits chunks for one file: the whole file if it fits, otherwise
// per-hunk chunks, otherwise line groups inside oversized hunks.
func (s *Splitter) splitFile(sec fileSection, maxTokens int) []Chunk {
	content := sec.content()
	header := sec.header()
	headerText := strings.Join(header, "\n")

	if s.est.Estimate(content) <= maxTokens {
		return []Chunk{{
			Content:  content,
			FilePath: sec.path,
			Level:    LevelFile,
			Context:  Context{FileHeader: headerText},
		}}
	}

	body := sec.lines[len(header):]
	if len(body) == 0 {
		// Header-only section: nothing finer to cut on, keep it whole.
		return []Chunk{{
			Content:  content,
			FilePath: sec.path,
			Level:    LevelFile,
			Context:  Context{FileHeader: headerText},
		}}
	}

	hunks := splitHunks(body)
	if len(hunks) == 0 {
		// Nothing below file granularity to cut on: fall through to line
		// packing over the raw body.
		return s.splitLines(sec.path, header, body, "", maxTokens)
	}

	var chunks []Chunk
	for _, h := range hunks {
		withHeader := append(append([]string{}, header...), h.lines...)
		hunkContent := strings.Join(withHeader, "\n") + "\n"
		if s.est.Estimate(hunkContent) <= maxTokens {
			chunks = append(chunks, Chunk{
				Content:  hunkContent,
				FilePath: sec.path,
				Level:    LevelHunk,
				Context:  Context{FileHeader: headerText, Function: h.function},
			})
			continue
		}
		chunks = append(chunks, s.splitLines(sec.path, header, h.lines, h.function, maxTokens)...)
	}
	return chunks
}

// splitLines greedily packs whole lines into chunks under the budget. The
// file header is repeated at the top of every chunk. A single line that
// exceeds the budget on its own is still emitted intact.
func (s *Splitter) splitLines(path string, header, lines []string, function string, maxTokens int) []Chunk {
	headerText := strings.Join(header, "\n")
	ctx := Context{FileHeader: headerText, Function: function}

	var chunks []Chunk
	running := append([]string{}, header...)

	flush := func() {
		if len(running) > len(header) {
			chunks = append(chunks, Chunk{
				Content:  strings.Join(running, "\n") + "\n",
				FilePath: path,
				Level:    LevelLine,
				Context:  ctx,
			})
		}
		running = append([]string{}, header...)
	}

	for _, line := range lines {
		candidate := strings.Join(append(running, line), "\n") + "\n"
		if s.est.Estimate(candidate) > maxTokens && len(running) > len(header) {
			flush()
		}
		running = append(running, line)
	}
	flush()
	return chunks
}

// mergeAdjacent walks chunks in order and greedily packs consecutive ones
// while the combined estimate stays within budget. Indices assigned before
// this pass are discarded.
func (s *Splitter) mergeAdjacent(chunks []Chunk, maxTokens int) []Chunk {
	if len(chunks) <= 1 {
		return chunks
	}

	var merged []Chunk
	cur := chunks[0]
	curPaths := []string{chunks[0].FilePath}

	for _, next := range chunks[1:] {
		combined := cur.Content + next.Content
		if s.est.Estimate(combined) <= maxTokens {
			cur.Content = combined
			if last := curPaths[len(curPaths)-1]; next.FilePath != last {
				curPaths = append(curPaths, next.FilePath)
			}
			cur.FilePath = chunkLabel(curPaths)
			if len(curPaths) > 1 {
				cur.Level = LevelFile
				cur.Context = Context{RelatedFiles: append([]string{}, curPaths...)}
			}
			continue
		}
		merged = append(merged, cur)
		cur = next
		curPaths = []string{next.FilePath}
	}
	merged = append(merged, cur)
	return merged
}

// chunkLabel names a chunk after the files it spans: a comma-joined list up
// to three files, a count label beyond that.
func chunkLabel(paths []string) string {
	switch {
	case len(paths) == 0:
		return ""
	case len(paths) == 1:
		return paths[0]
	case len(paths) <= 3:
		return strings.Join(paths, ", ")
	default:
		return fmt.Sprintf("Multiple files (%d)", len(paths))
	}
}

func renumber(chunks []Chunk) []Chunk {
	for i := range chunks {
		chunks[i].Index = i
		chunks[i].Total = len(chunks)
	}
	return chunks
}

func splitFileSections(text string) []fileSection {
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")

	var sections []fileSection
	var current []string
	for _, line := range lines {
		if strings.HasPrefix(line, fileMarker) && len(current) > 0 {
			sections = append(sections, fileSection{path: sectionPath(current), lines: current})
			current = nil
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		sections = append(sections, fileSection{path: sectionPath(current), lines: current})
	}

	// Without a single recognizable file marker this is not a unified diff;
	// report no sections so the caller treats the text as one unit.
	recognized := false
	for _, sec := range sections {
		if strings.HasPrefix(sec.lines[0], fileMarker) {
			recognized = true
			break
		}
	}
	if !recognized {
		return nil
	}
	return sections
}

func sectionPath(lines []string) string {
	for _, line := range lines {
		if strings.HasPrefix(line, "+++ b/") {
			return strings.TrimPrefix(line, "+++ b/")
		}
	}
	// Deleted files have +++ /dev/null; fall back to the old side.
	for _, line := range lines {
		if strings.HasPrefix(line, "--- a/") {
			return strings.TrimPrefix(line, "--- a/")
		}
	}
	if len(lines) > 0 && strings.HasPrefix(lines[0], fileMarker) {
		rest := strings.TrimPrefix(lines[0], fileMarker)
		if i := strings.Index(rest, " b/"); i >= 0 {
			return rest[i+len(" b/"):]
		}
	}
	return ""
}

func sectionPaths(sections []fileSection) []string {
	var paths []string
	for _, sec := range sections {
		if sec.path != "" {
			paths = append(paths, sec.path)
		}
	}
	return paths
}

// hunk is one @@-delimited block within a file section.
type hunk struct {
	lines    []string
	function string
}

func splitHunks(lines []string) []hunk {
	var hunks []hunk
	var current []string
	var function string

	flush := func() {
		if len(current) > 0 {
			hunks = append(hunks, hunk{lines: current, function: function})
		}
	}

	started := false
	for _, line := range lines {
		if strings.HasPrefix(line, "@@") {
			flush()
			current = nil
			function = hunkFunction(line)
			started = true
		}
		if started {
			current = append(current, line)
		}
	}
	flush()
	return hunks
}

// hunkFunction extracts the trailing section heading from a hunk marker,
// e.g. "@@ -1,4 +1,6 @@ func (s *Server) Start()".
func hunkFunction(marker string) string {
	rest := strings.TrimPrefix(marker, "@@")
	if i := strings.Index(rest, "@@"); i >= 0 {
		return strings.TrimSpace(rest[i+2:])
	}
	return ""
}
