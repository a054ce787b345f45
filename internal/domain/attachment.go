package domain

import "time"

// Attachment 表示附属于某件公文的文件。
// Filename 仅用于展示与下载命名，磁盘上的文件以 StoredName 为准。
type Attachment struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	Filename         string    `json:"filename" gorm:"type:varchar(255);not null"`      // 原始文件名
	StoredName       string    `json:"-" gorm:"type:varchar(255);uniqueIndex;not null"` // 磁盘文件名（唯一）
	FileSize         int64     `json:"fileSize" gorm:"not null"`                        // 大小（字节）
	MimeType         string    `json:"mimeType" gorm:"type:varchar(100);not null"`      // MIME类型
	CorrespondenceID uint      `json:"correspondenceId" gorm:"index;not null"`          // 所属公文
	UploadedBy       uint      `json:"uploadedBy"`                                      // 上传人
	UploadedAt       time.Time `json:"uploadedAt" gorm:"autoCreateTime"`                // 上传时间
}

// IsImage 是否可在浏览器中内联预览的图片
func (a *Attachment) IsImage() bool {
	switch a.MimeType {
	case "image/png", "image/jpeg", "image/gif", "image/bmp", "image/tiff":
		return true
	}
	return false
}
