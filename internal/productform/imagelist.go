package productform

import "sync"

// ImageList is the ordered list of image URLs of one form. Uploads append to it while
// the administrator may replace it wholesale by reordering; the last write wins.
type ImageList struct {
	mu     sync.Mutex
	images []string
}

func NewImageList(initial []string) *ImageList {
	l := &ImageList{images: []string{}}
	l.images = append(l.images, initial...)
	return l
}

// AppendImages adds urls at the end and returns the resulting list.
func (l *ImageList) AppendImages(urls ...string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.images = append(l.images, urls...)
	return l.copyLocked()
}

// Replace swaps in a new order.
func (l *ImageList) Replace(images []string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.images = append(make([]string, 0, len(images)), images...)
	return l.copyLocked()
}

func (l *ImageList) Snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.copyLocked()
}

func (l *ImageList) copyLocked() []string {
	out := make([]string, len(l.images))
	copy(out, l.images)
	return out
}
