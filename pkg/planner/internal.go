package planner

import "github.com/yuya-takeyama/lms/internal/walker"

type ItemRef struct {
	Path string
	Kind walker.Kind
	Size int64
}

type Phase1Result struct {
	NewItems        []ItemRef
	DeletedItems    []ItemRef
	KindMismatch    []ItemRef
	SizeMismatch    []ItemRef
	ModTimeMismatch []ItemRef
	LinkMismatch    []ItemRef
	NeedChecksum    []ItemRef
	Identical       []ItemRef
}

type ChecksumData struct {
	ItemRef        ItemRef
	SourceChecksum string
	DestChecksum   string
	Err            error
}
