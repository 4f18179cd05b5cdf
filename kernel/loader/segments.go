package loader

import "github.com/kernelkit/pintos-go/kernel/elfbin"

// PageMapping describes one page-sized lazy-loadable unit of a PT_LOAD
// segment: read ReadBytes from the executable at FileOffset starting at
// this page, then zero-fill the remaining ZeroBytes. kernel/vm installs one
// supplemental-page-table entry per PageMapping, backed by the executable
// file handle rather than eagerly read, per §4.5/§4.7's "lazy preferred".
type PageMapping struct {
	Vaddr      uint32
	FileOffset uint32
	ReadBytes  uint32
	ZeroBytes  uint32
	Writable   bool
}

// PlanSegment expands one validated PT_LOAD program header into the
// sequence of page-sized mappings load_segment would install, without
// actually touching any frame; that happens lazily on first page fault
// per §4.7.
func PlanSegment(ph elfbin.ProgramHeader) []PageMapping {
	filePage := elfbin.PageOfOffset(ph.Offset)
	memPage := elfbin.PageOfVaddr(ph.Vaddr)
	pageOffset := elfbin.PageOffset(ph.Vaddr)

	var readBytes, zeroBytes uint32
	if ph.Filesz > 0 {
		readBytes = pageOffset + ph.Filesz
		zeroBytes = elfbin.RoundUpPage(pageOffset+ph.Memsz) - readBytes
	} else {
		readBytes = 0
		zeroBytes = elfbin.RoundUpPage(pageOffset + ph.Memsz)
	}

	var mappings []PageMapping
	for readBytes > 0 || zeroBytes > 0 {
		pageRead := readBytes
		if pageRead > elfbin.PageSize {
			pageRead = elfbin.PageSize
		}
		pageZero := elfbin.PageSize - pageRead

		mappings = append(mappings, PageMapping{
			Vaddr:      memPage,
			FileOffset: filePage,
			ReadBytes:  pageRead,
			ZeroBytes:  pageZero,
			Writable:   ph.Writable(),
		})

		readBytes -= pageRead
		if zeroBytes < elfbin.PageSize-pageRead {
			zeroBytes = 0
		} else {
			zeroBytes -= elfbin.PageSize - pageRead
		}
		memPage += elfbin.PageSize
		filePage += elfbin.PageSize
	}
	return mappings
}
