package pagebits

const (
	// PageBits is log2 of the tracked page size.
	PageBits = 12

	// PageSize is the smallest tracked unit in bytes.
	PageSize uint64 = 1 << PageBits

	// PagesPerWord is the number of pages packed into one bitmap word.
	PagesPerWord = 64

	// BytesPerWord is the guest memory covered by one bitmap word (256 KiB).
	BytesPerWord = PageSize * PagesPerWord

	// WordBits is log2 of BytesPerWord.
	WordBits = PageBits + 6
)
