package model

// LogRotator is a build-history retention policy. A value of -1 means
// "no limit" for that dimension.
type LogRotator struct {
	DaysToKeep         int `json:"days_to_keep" yaml:"days_to_keep"`
	NumToKeep          int `json:"num_to_keep" yaml:"num_to_keep"`
	ArtifactDaysToKeep int `json:"artifact_days_to_keep" yaml:"artifact_days_to_keep"`
	ArtifactNumToKeep  int `json:"artifact_num_to_keep" yaml:"artifact_num_to_keep"`
}

// NewLogRotator creates a LogRotator.
func NewLogRotator(daysToKeep, numToKeep, artifactDaysToKeep, artifactNumToKeep int) *LogRotator {
	return &LogRotator{
		DaysToKeep:         daysToKeep,
		NumToKeep:          numToKeep,
		ArtifactDaysToKeep: artifactDaysToKeep,
		ArtifactNumToKeep:  artifactNumToKeep,
	}
}

// Equal reports whether two policies are the same. Two nil policies are equal.
func (lr *LogRotator) Equal(other *LogRotator) bool {
	if lr == nil || other == nil {
		return lr == other
	}
	return *lr == *other
}

// Clone returns a copy of lr, or nil.
func (lr *LogRotator) Clone() *LogRotator {
	if lr == nil {
		return nil
	}
	c := *lr
	return &c
}
