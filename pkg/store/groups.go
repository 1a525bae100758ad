package store

import (
	bolt "go.etcd.io/bbolt"
	"gopkg.in/yaml.v3"
	"src.sel.sh/pkg/indexgroup"
	. "src.sel.sh/pkg/store/storedefs"
)

func init() {
	initDB["initialize index group table"] = func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketGroups))
		return err
	}
}

// Groups are keyed by the sequence number of their first insertion, so
// that ordinals stay stable when a group is replaced.

// PutGroup saves a group, replacing any group with the same name.
func (s *dbStore) PutGroup(g indexgroup.Group) error {
	data, err := yaml.Marshal(g)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketGroups))
		k, _, err := findGroup(b, g.Name)
		if err != nil {
			return err
		}
		if k == nil {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			k = marshalSeq(seq)
		}
		return b.Put(k, data)
	})
}

// DelGroup deletes the group with the given name.
func (s *dbStore) DelGroup(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketGroups))
		k, _, err := findGroup(b, name)
		if err != nil {
			return err
		}
		if k == nil {
			return ErrNoGroup
		}
		return b.Delete(k)
	})
}

// Group returns the group with the given name.
func (s *dbStore) Group(name string) (indexgroup.Group, error) {
	var g indexgroup.Group
	err := s.db.View(func(tx *bolt.Tx) error {
		k, found, err := findGroup(tx.Bucket([]byte(bucketGroups)), name)
		if err != nil {
			return err
		}
		if k == nil {
			return ErrNoGroup
		}
		g = found
		return nil
	})
	return g, err
}

// Groups returns all saved groups in the order they were first saved. The
// result can be used as the index group source of a selection collection.
func (s *dbStore) Groups() (indexgroup.Groups, error) {
	var gs indexgroup.Groups
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketGroups)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var g indexgroup.Group
			if err := yaml.Unmarshal(v, &g); err != nil {
				return err
			}
			gs = append(gs, g)
		}
		return nil
	})
	return gs, err
}

func findGroup(b *bolt.Bucket, name string) ([]byte, indexgroup.Group, error) {
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var g indexgroup.Group
		if err := yaml.Unmarshal(v, &g); err != nil {
			return nil, g, err
		}
		if g.Name == name {
			return k, g, nil
		}
	}
	return nil, indexgroup.Group{}, nil
}
