package generic

// Arena stores indirect objects in a slice indexed by object number.
// Object graphs refer to each other only through Reference values, so
// rewriting a graph is an index rewrite rather than pointer surgery.
type Arena struct {
	slots []*IndirectObject
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{slots: make([]*IndirectObject, 1)}
}

// Get returns the object stored under num, or nil.
func (a *Arena) Get(num int) *IndirectObject {
	if num <= 0 || num >= len(a.slots) {
		return nil
	}
	return a.slots[num]
}

// Set stores obj under num, growing the arena as needed.
func (a *Arena) Set(num, gen int, obj PdfObject) *IndirectObject {
	if num <= 0 {
		return nil
	}
	for num >= len(a.slots) {
		a.slots = append(a.slots, nil)
	}
	entry := &IndirectObject{Number: num, Generation: gen, Object: obj}
	a.slots[num] = entry
	return entry
}

// Allocate stores obj under the next free number.
func (a *Arena) Allocate(obj PdfObject) Reference {
	num := len(a.slots)
	a.Set(num, 0, obj)
	return Reference{ObjectNumber: num}
}

// MaxNumber returns the highest object number in use, or 0.
func (a *Arena) MaxNumber() int {
	for i := len(a.slots) - 1; i > 0; i-- {
		if a.slots[i] != nil {
			return i
		}
	}
	return 0
}

// Len returns the number of stored objects.
func (a *Arena) Len() int {
	n := 0
	for _, s := range a.slots {
		if s != nil {
			n++
		}
	}
	return n
}

// Each calls fn for every stored object in ascending number order.
func (a *Arena) Each(fn func(*IndirectObject) bool) {
	for _, s := range a.slots {
		if s == nil {
			continue
		}
		if !fn(s) {
			return
		}
	}
}

// Resolve follows references until a direct object is reached. Dangling or
// cyclic references resolve to NullObject.
func (a *Arena) Resolve(obj PdfObject) PdfObject {
	seen := 0
	for {
		ref, ok := obj.(Reference)
		if !ok {
			if obj == nil {
				return NullObject{}
			}
			return obj
		}
		entry := a.Get(ref.ObjectNumber)
		if entry == nil || seen > len(a.slots) {
			return NullObject{}
		}
		obj = entry.Object
		seen++
	}
}

// Dict resolves obj and returns it as a dictionary. Streams yield their
// dictionary.
func (a *Arena) Dict(obj PdfObject) *DictionaryObject {
	switch v := a.Resolve(obj).(type) {
	case *DictionaryObject:
		return v
	case *StreamObject:
		return v.Dictionary
	}
	return nil
}

// Array resolves obj and returns it as an array.
func (a *Arena) Array(obj PdfObject) ArrayObject {
	arr, _ := a.Resolve(obj).(ArrayObject)
	return arr
}

// Int resolves obj and returns it as an integer.
func (a *Arena) Int(obj PdfObject) (int64, bool) {
	return ToInt(a.Resolve(obj))
}
