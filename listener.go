package xlgrid

// ChangeKind classifies a Change.
type ChangeKind int

const (
	ChangeCell        ChangeKind = iota // a cell source was set or removed
	ChangeShape                         // the shape changed (resize, insert, delete)
	ChangeAttributes                    // the attribute list changed
	ChangeSize                          // a row height or column width changed
	ChangeMacros                        // the macro block was replaced
	ChangeSafeMode                      // safe mode was entered or left
	ChangeResultCache                   // cached results were cleared wholesale
	ChangeDocument                      // the document was cleared, loaded or saved
)

// String returns a human-readable name for the ChangeKind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeCell:
		return "Cell"
	case ChangeShape:
		return "Shape"
	case ChangeAttributes:
		return "Attributes"
	case ChangeSize:
		return "Size"
	case ChangeMacros:
		return "Macros"
	case ChangeSafeMode:
		return "SafeMode"
	case ChangeResultCache:
		return "ResultCache"
	case ChangeDocument:
		return "Document"
	default:
		return "Unknown"
	}
}

// Change describes one state change of a Grid.
type Change struct {
	Kind     ChangeKind
	Coord    Coord  // ChangeCell
	Shape    Shape  // ChangeShape, ChangeDocument
	SafeMode bool   // ChangeSafeMode
	Detail   string // free-form status text, e.g. "loaded", "saved", "undo"
}

// Listener is notified of grid changes after the grid lock is released, so
// implementations may read from the grid. Register with WithListener.
type Listener interface {
	GridChanged(g *Grid, ch Change)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(g *Grid, ch Change)

// GridChanged calls f(g, ch).
func (f ListenerFunc) GridChanged(g *Grid, ch Change) { f(g, ch) }
