package record

// ExportRecord is the newline-delimited JSON shape of a bulk-export line. A
// posting line carries pk/sk/dk/hp; the optional trailing metadata line
// carries pk/sk plus the counter fields. Shapes match the live schema so an
// exported file can be bulk-loaded into the same table.
type ExportRecord struct {
	Partition  string           `json:"pk"`
	Sort       []byte           `json:"sk"`
	DocKey     string           `json:"dk,omitempty"`
	HashPrefix *byte            `json:"hp,omitempty"`
	DocCount   *int64           `json:"dc,omitempty"`
	TokenCount map[string]int64 `json:"tc,omitempty"`
}

// ExportPosting shapes a posting for bulk export.
func ExportPosting(p Posting) ExportRecord {
	hp := KeyHashPrefix(p.DocKey)
	return ExportRecord{
		Partition:  p.PartitionKey(),
		Sort:       p.SortKey(),
		DocKey:     p.DocKey,
		HashPrefix: &hp,
	}
}

// ExportMetadata shapes the trailing metadata line for bulk export.
func ExportMetadata(docCount int64, tokenCount map[string]int64) ExportRecord {
	key := MetaKey()
	return ExportRecord{
		Partition:  key.Partition,
		Sort:       key.Sort,
		DocCount:   &docCount,
		TokenCount: tokenCount,
	}
}
