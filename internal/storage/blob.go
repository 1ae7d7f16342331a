// Package storage は記事画像のBlobアップロードを提供する。
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/google/uuid"
)

// ImageStore は画像アップロードのインターフェース。
// アップロード成功時は公開URLを返す。
type ImageStore interface {
	Upload(ctx context.Context, filename, contentType string, body io.Reader) (string, error)
}

// AzureBlobConfig はAzure Blob Storageの設定。
type AzureBlobConfig struct {
	Account   string
	Container string
	Key       string
}

// AzureBlobStore はAzure Blob Storageへの画像アップロード実装。
type AzureBlobStore struct {
	client    *azblob.Client
	account   string
	container string
}

// NewAzureBlobStore は共有キー認証でAzureBlobStoreを生成する。
func NewAzureBlobStore(config AzureBlobConfig) (*AzureBlobStore, error) {
	cred, err := azblob.NewSharedKeyCredential(config.Account, config.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", config.Account)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	return &AzureBlobStore{
		client:    client,
		account:   config.Account,
		container: config.Container,
	}, nil
}

// Upload は画像をコンテナにアップロードし、公開URLを返す。
// Blob名は衝突回避のためUUIDで採番し、元のファイル名からは拡張子のみ引き継ぐ。
func (s *AzureBlobStore) Upload(ctx context.Context, filename, contentType string, body io.Reader) (string, error) {
	blobName := uuid.NewString() + safeExtension(filename)

	opts := &azblob.UploadStreamOptions{}
	if contentType != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: &contentType}
	}

	if _, err := s.client.UploadStream(ctx, s.container, blobName, body, opts); err != nil {
		return "", fmt.Errorf("failed to upload image %q: %w", blobName, err)
	}

	return fmt.Sprintf("https://%s.blob.core.windows.net/%s/%s", s.account, s.container, blobName), nil
}

// safeExtension はファイル名から小文字の拡張子を取り出す。
// パス区切りなどの危険な文字を含む場合は空文字列を返す。
func safeExtension(filename string) string {
	ext := strings.ToLower(path.Ext(path.Base(filename)))
	for _, r := range ext {
		if !(r == '.' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return ""
		}
	}
	return ext
}

// compile-time interface check
var _ ImageStore = (*AzureBlobStore)(nil)
