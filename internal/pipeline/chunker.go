package pipeline

import (
	"fmt"
	"strings"
	"unicode"

	"catalog-assist-go/internal/config"
	"catalog-assist-go/internal/model"
)

// ChunkConfig 切块参数，单位为字符（rune）。
type ChunkConfig struct {
	MaxSize int
	Overlap int
	MinSize int
}

// NewChunkConfig 从配置文件参数构建切块参数。
func NewChunkConfig(cfg config.ChunkingConfig) ChunkConfig {
	return ChunkConfig{MaxSize: cfg.MaxSize, Overlap: cfg.Overlap, MinSize: cfg.MinSize}
}

// Validate 检查参数组合是否合法。
func (c ChunkConfig) Validate() error {
	if c.MaxSize <= 0 {
		return fmt.Errorf("%w: max size must be positive, got %d", model.ErrValidation, c.MaxSize)
	}
	if c.Overlap < 0 || c.Overlap >= c.MaxSize {
		return fmt.Errorf("%w: overlap %d must be in [0, %d)", model.ErrValidation, c.Overlap, c.MaxSize)
	}
	if c.MinSize < 0 || c.MinSize > c.MaxSize {
		return fmt.Errorf("%w: min size %d must be in [0, %d]", model.ErrValidation, c.MinSize, c.MaxSize)
	}
	return nil
}

// Piece 是切块结果中的一段文本。
type Piece struct {
	Index   int
	Content string
}

// Chunk 将文本切分为有序、相邻之间重叠 Overlap 个字符的分块。
// 切分点优先选择段落、换行、句末、空白，找不到时在 MaxSize 处硬切。
// 末尾短于 MinSize 的片段并入前一个分块，因此最后一个分块可能略超 MaxSize。
// 对相同输入与参数，输出完全一致。
func Chunk(text string, cfg ChunkConfig) ([]Piece, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return []Piece{}, nil
	}

	runes := []rune(text)
	n := len(runes)

	type span struct{ start, end int }
	var spans []span
	start := 0
	for {
		if n-start <= cfg.MaxSize {
			spans = append(spans, span{start, n})
			break
		}
		cut := findCut(runes, start, cfg)
		spans = append(spans, span{start, cut})
		start = cut - cfg.Overlap
	}

	if last := len(spans) - 1; last > 0 && spans[last].end-spans[last].start < cfg.MinSize {
		spans[last-1].end = spans[last].end
		spans = spans[:last]
	}

	pieces := make([]Piece, 0, len(spans))
	for _, s := range spans {
		content := string(runes[s.start:s.end])
		if strings.TrimSpace(content) == "" {
			continue
		}
		pieces = append(pieces, Piece{Index: len(pieces), Content: content})
	}
	return pieces, nil
}

// findCut 返回 (lo, start+MaxSize] 内最靠后的自然边界。
// lo 保证分块至少有半个窗口长，并且下一块的起点严格前进。
func findCut(runes []rune, start int, cfg ChunkConfig) int {
	end := start + cfg.MaxSize
	lo := start + cfg.MaxSize/2
	if o := start + cfg.Overlap; o > lo {
		lo = o
	}

	boundaries := []func(i int) bool{
		// 段落
		func(i int) bool { return i-2 >= start && runes[i-1] == '\n' && runes[i-2] == '\n' },
		// 换行
		func(i int) bool { return runes[i-1] == '\n' },
		// 句末标点后的空白
		func(i int) bool {
			return i-2 >= start && unicode.IsSpace(runes[i-1]) && strings.ContainsRune(".!?;:", runes[i-2])
		},
		// 任意空白
		func(i int) bool { return unicode.IsSpace(runes[i-1]) },
	}
	for _, isBoundary := range boundaries {
		for i := end; i > lo; i-- {
			if isBoundary(i) {
				return i
			}
		}
	}
	return end
}

// ToChunks 把切块结果转换为待持久化的分块。
func ToChunks(documentID uint, pieces []Piece) []model.Chunk {
	chunks := make([]model.Chunk, 0, len(pieces))
	for _, p := range pieces {
		chunks = append(chunks, model.Chunk{
			DocumentID: documentID,
			SeqIndex:   p.Index,
			Content:    p.Content,
			Length:     model.RuneLength(p.Content),
		})
	}
	return chunks
}
