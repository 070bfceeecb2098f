package bids

// Streamer yields successive single-volume incrementals from an archive,
// the exchange pattern a real-time consumer sees. Exhaustion surfaces as
// ErrNoMoreData, distinct from read failures.
type Streamer struct {
	archive  *Archive
	metadata Metadata
	index    int
}

// NewStreamer creates a streamer over archive for the image addressed by
// searchMetadata (the path-forming entity fields plus suffix and datatype).
func NewStreamer(archive *Archive, searchMetadata map[string]any) *Streamer {
	return &Streamer{
		archive:  archive,
		metadata: copyMetadata(searchMetadata),
	}
}

// Next returns the incremental at the current position and advances. After
// the last volume it returns ErrNoMoreData.
func (s *Streamer) Next() (*Incremental, error) {
	inc, err := s.archive.GetIncremental(s.index, s.metadata)
	if err != nil {
		return nil, err
	}
	s.index++
	return inc, nil
}

// Seek repositions the streamer at the given volume index.
func (s *Streamer) Seek(index int) {
	s.index = index
}

// Index returns the next volume index to be read.
func (s *Streamer) Index() int {
	return s.index
}
