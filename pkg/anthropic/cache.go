package anthropic

// BuildCachedSystemBlocks splits a system prompt into a static instruction
// block and a source-context block, marking the context block for caching.
// The generation and correction passes share the same retrieved sources, so
// caching the context block avoids paying for it twice.
func BuildCachedSystemBlocks(instructions, sourceContext string) []SystemBlock {
	blocks := []SystemBlock{
		{Text: instructions},
	}
	if sourceContext != "" {
		blocks = append(blocks, SystemBlock{
			Text:         sourceContext,
			CacheControl: &CacheControl{TTL: "5m"},
		})
	}
	return blocks
}
