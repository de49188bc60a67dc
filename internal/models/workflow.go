package models

// StorageDetail is the storage event detail carried in workflow variables:
// {"bucket": {"name": ...}, "object": {"key": ...}}.
type StorageDetail struct {
	Bucket struct {
		Name string `json:"name"`
	} `json:"bucket"`
	Object struct {
		Key string `json:"key"`
	} `json:"object"`
}

// NewStorageDetail builds a detail for bucket and key.
func NewStorageDetail(bucket, key string) StorageDetail {
	var d StorageDetail
	d.Bucket.Name = bucket
	d.Object.Key = key
	return d
}

// ApplicationRef is the "application" workflow variable.
type ApplicationRef struct {
	AppUUID string `json:"app_uuid"`
}

// WorkflowVariables is the payload a verification process instance starts with.
type WorkflowVariables struct {
	Detail      StorageDetail   `json:"detail"`
	Application *ApplicationRef `json:"application,omitempty"`
}

// StagedKey returns the object key a member is staged under.
func StagedKey(prefix, member string) string {
	return prefix + member
}
