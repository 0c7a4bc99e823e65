package citydb

import (
	snapshot "aicity.ai/internal/persistence/snapshot"
)

func writeSnapshotFile(path string, snap snapshot.CityV1) error {
	return snapshot.Write(path, snap)
}

// ReadSnapshot loads a checkpoint file for resume.
func ReadSnapshot(path string) (snapshot.CityV1, error) {
	return snapshot.Read(path)
}
