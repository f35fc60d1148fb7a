package gateway

// ShardScheme determines which shards a cluster manages. The zero value is
// the auto scheme, which asks the gateway for the recommended shard count
// and manages all of them.
type ShardScheme struct {
	Auto  bool
	From  int
	To    int
	Total int
}

// AutoScheme asks the gateway for the recommended shard count at startup
// and manages every shard.
func AutoScheme() ShardScheme {
	return ShardScheme{Auto: true}
}

// RangeScheme manages shards from through to of total. The range does not
// have to reach up to the total.
func RangeScheme(from int, to int, total int) (ShardScheme, error) {
	if from > to || to >= total || from < 0 {
		return ShardScheme{}, &IDTooLargeError{Start: from, End: to, Total: total}
	}

	return ShardScheme{From: from, To: to, Total: total}, nil
}

// ShardIDs returns the shard ids this scheme manages.
func (s ShardScheme) ShardIDs() []int {
	ids := make([]int, 0, s.To-s.From+1)
	for id := s.From; id <= s.To; id++ {
		ids = append(ids, id)
	}

	return ids
}
