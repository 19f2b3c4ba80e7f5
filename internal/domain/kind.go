package domain

// CardKind identifies one card type on the canvas.
type CardKind string

// CardKind values.
const (
	KindNote             CardKind = "note"
	KindImage            CardKind = "image"
	KindText             CardKind = "text"
	KindTaskList         CardKind = "task_list"
	KindLink             CardKind = "link"
	KindFile             CardKind = "file"
	KindColorPalette     CardKind = "color_palette"
	KindColumn           CardKind = "column"
	KindBoard            CardKind = "board"
	KindLine             CardKind = "line"
	KindDrawing          CardKind = "drawing"
	KindPresentationNode CardKind = "presentation_node"
)

// validKinds stores all supported card kinds.
var validKinds = []CardKind{
	KindNote,
	KindImage,
	KindText,
	KindTaskList,
	KindLink,
	KindFile,
	KindColorPalette,
	KindColumn,
	KindBoard,
	KindLine,
	KindDrawing,
	KindPresentationNode,
}

// ValidKind reports whether kind is a supported card kind.
func ValidKind(kind CardKind) bool {
	for _, k := range validKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Kinds returns all supported card kinds in declaration order.
func Kinds() []CardKind {
	out := make([]CardKind, len(validKinds))
	copy(out, validKinds)
	return out
}

// ResizeMode describes which dimensions a card kind lets the user control.
type ResizeMode string

// ResizeMode values.
const (
	ResizeNone      ResizeMode = "none"
	ResizeWidthOnly ResizeMode = "width_only"
	ResizeBoth      ResizeMode = "both"
)

// HeightMode describes how a card kind derives its height.
type HeightMode string

// HeightMode values.
const (
	HeightContent HeightMode = "content"
	HeightFixed   HeightMode = "fixed"
	HeightHybrid  HeightMode = "hybrid"
)

// KindCapability stores the per-kind behavior table consulted by the
// interaction controllers: how a card resizes, how its height is derived,
// whether lines may attach to it, and whether it may join a column.
type KindCapability struct {
	Resize      ResizeMode
	Height      HeightMode
	Connectable bool
	Columnable  bool
	FixedAspect bool
	MinWidth    float64
	MaxWidth    float64
	MinHeight   float64
	MaxHeight   float64
}

// kindCapabilities is the closed capability table over all card kinds.
var kindCapabilities = map[CardKind]KindCapability{
	KindNote: {
		Resize: ResizeBoth, Height: HeightHybrid, Connectable: true, Columnable: true,
		MinWidth: 120, MaxWidth: 1600, MinHeight: 60, MaxHeight: 4000,
	},
	KindImage: {
		Resize: ResizeBoth, Height: HeightFixed, Connectable: true, Columnable: true, FixedAspect: true,
		MinWidth: 40, MaxWidth: 3200, MinHeight: 40, MaxHeight: 3200,
	},
	KindText: {
		Resize: ResizeWidthOnly, Height: HeightContent, Connectable: true, Columnable: true,
		MinWidth: 60, MaxWidth: 1600,
	},
	KindTaskList: {
		Resize: ResizeWidthOnly, Height: HeightContent, Connectable: true, Columnable: true,
		MinWidth: 140, MaxWidth: 1200,
	},
	KindLink: {
		Resize: ResizeWidthOnly, Height: HeightContent, Connectable: true, Columnable: true,
		MinWidth: 140, MaxWidth: 800,
	},
	KindFile: {
		Resize: ResizeWidthOnly, Height: HeightContent, Connectable: true, Columnable: true,
		MinWidth: 140, MaxWidth: 800,
	},
	KindColorPalette: {
		Resize: ResizeWidthOnly, Height: HeightContent, Connectable: true, Columnable: true,
		MinWidth: 120, MaxWidth: 800,
	},
	KindColumn: {
		Resize: ResizeWidthOnly, Height: HeightContent, Connectable: true, Columnable: false,
		MinWidth: 180, MaxWidth: 1200,
	},
	KindBoard: {
		Resize: ResizeWidthOnly, Height: HeightContent, Connectable: true, Columnable: true,
		MinWidth: 140, MaxWidth: 600,
	},
	KindLine: {
		Resize: ResizeNone, Height: HeightContent, Connectable: false, Columnable: false,
	},
	KindDrawing: {
		Resize: ResizeBoth, Height: HeightFixed, Connectable: true, Columnable: true,
		MinWidth: 40, MaxWidth: 3200, MinHeight: 40, MaxHeight: 3200,
	},
	KindPresentationNode: {
		Resize: ResizeNone, Height: HeightContent, Connectable: false, Columnable: false,
	},
}

// CapabilityFor returns the behavior table entry for kind. Unknown kinds get
// the most conservative entry (no resize, no connections, no column membership).
func CapabilityFor(kind CardKind) KindCapability {
	if c, ok := kindCapabilities[kind]; ok {
		return c
	}
	return KindCapability{Resize: ResizeNone, Height: HeightContent}
}
