package extract

// Extractor converts an HTML document into plain text.
type Extractor interface {
	Extract(input []byte) Document
}

// BookExtractor is the default Extractor, backed by FromHTML.
type BookExtractor struct{}

func (BookExtractor) Extract(input []byte) Document {
	return FromHTML(input)
}
