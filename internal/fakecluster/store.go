//
//  Copyright © Manetu Inc. All rights reserved.
//

package fakecluster

import (
	"bytes"
	"encoding/json"
	"io"
	"path"
	"sort"
	"strconv"
	"sync"

	"github.com/mohae/deepcopy"
	"github.com/pkg/errors"
)

// Document is the source of one indexed document.
type Document map[string]interface{}

type index struct {
	ids  []string
	docs map[string]Document
}

// Store holds indices in memory.  Documents keep their insertion order.
type Store struct {
	mu      sync.RWMutex
	indices map[string]*index
	nextID  int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{indices: make(map[string]*index)}
}

// Put indexes doc, replacing any document with the same id.  An empty id
// is generated.
func (s *Store) Put(name, id string, doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indices[name]
	if idx == nil {
		idx = &index{docs: make(map[string]Document)}
		s.indices[name] = idx
	}
	if id == "" {
		s.nextID++
		id = "auto-" + strconv.Itoa(s.nextID)
	}
	if _, exists := idx.docs[id]; !exists {
		idx.ids = append(idx.ids, id)
	}
	idx.docs[id] = doc
}

type bulkHeader struct {
	Index *struct {
		Index string `json:"_index"`
		ID    string `json:"_id"`
	} `json:"index"`
}

// Bulk applies an NDJSON bulk body of index actions and returns how many
// documents it indexed.
func (s *Store) Bulk(body []byte) (int, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	count := 0
	for {
		var action bulkHeader
		err := dec.Decode(&action)
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, errors.Wrap(err, "decode bulk action")
		}
		if action.Index == nil || action.Index.Index == "" {
			return count, errors.New("only index actions with an _index are supported")
		}

		var doc Document
		if err := dec.Decode(&doc); err != nil {
			return count, errors.Wrapf(err, "decode document for %s", action.Index.Index)
		}
		s.Put(action.Index.Index, action.Index.ID, doc)
		count++
	}
}

// Exists reports whether the index exists.
func (s *Store) Exists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.indices[name]
	return ok
}

// Resolve returns the sorted names of the indices matching a glob pattern.
func (s *Store) Resolve(pattern string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	for name := range s.indices {
		if ok, _ := path.Match(pattern, name); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Delete removes every index matching pattern and returns their names.
func (s *Store) Delete(pattern string) []string {
	names := s.Resolve(pattern)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		delete(s.indices, name)
	}
	return names
}

// Fields returns the sorted field names used by any document of the index.
func (s *Store) Fields(name string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indices[name]
	if idx == nil {
		return nil
	}
	set := make(map[string]struct{})
	for _, doc := range idx.docs {
		for field := range doc {
			set[field] = struct{}{}
		}
	}
	fields := make([]string, 0, len(set))
	for field := range set {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// FieldType is the mapping of a field as both the search engine and SQL see it.
type FieldType struct {
	Mapping string
	SQL     string
}

var (
	longType    = FieldType{Mapping: "long", SQL: "BIGINT"}
	doubleType  = FieldType{Mapping: "double", SQL: "DOUBLE"}
	textType    = FieldType{Mapping: "text", SQL: "VARCHAR"}
	booleanType = FieldType{Mapping: "boolean", SQL: "BOOLEAN"}
	objectType  = FieldType{Mapping: "object", SQL: "STRUCT"}
)

func typeOf(v interface{}) FieldType {
	switch x := v.(type) {
	case float64:
		if x == float64(int64(x)) {
			return longType
		}
		return doubleType
	case string:
		return textType
	case bool:
		return booleanType
	default:
		return objectType
	}
}

// Types infers the type of every field from the first document holding it.
func (s *Store) Types(name string) map[string]FieldType {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make(map[string]FieldType)
	idx := s.indices[name]
	if idx == nil {
		return types
	}
	for _, id := range idx.ids {
		for field, v := range idx.docs[id] {
			if _, seen := types[field]; !seen && v != nil {
				types[field] = typeOf(v)
			}
		}
	}
	return types
}

// Snapshot returns deep copies of the documents of an index in insertion
// order, so results stay stable while a cursor is open.
func (s *Store) Snapshot(name string) []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indices[name]
	if idx == nil {
		return nil
	}
	docs := make([]Document, 0, len(idx.ids))
	for _, id := range idx.ids {
		docs = append(docs, deepcopy.Copy(idx.docs[id]).(Document))
	}
	return docs
}
