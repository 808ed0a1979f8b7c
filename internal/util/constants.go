package util

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

const MimeCSV = "text/csv"

// StorageExportDir 成绩导出文件在对象存储中的前缀
const StorageExportDir = "exports"
