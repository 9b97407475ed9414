package orchestrator

import "github.com/hazyhaar/pairwatch/extract"

func extractRecord(snipers string) extract.Record {
	return extract.Record{Snipers: snipers}
}
