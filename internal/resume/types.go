package resume

// CreateInput 描述新建简历所需字段。Version 为空时使用 "v1.0"。
type CreateInput struct {
	Title            string
	Version          *string
	OriginalFilename *string
	FileSize         *int64
	FileType         *string
}

// UpdateInput 描述版本更新的可选字段，nil 表示沿用旧版本的值。
type UpdateInput struct {
	Title            *string
	Version          *string
	Status           *string
	OriginalFilename *string
	FileSize         *int64
	FileType         *string
}

// FileInput 描述上传的原始简历文件。
type FileInput struct {
	OriginalFilename string
	FileSize         int64
	FileType         string
	ObjectKey        string
}
