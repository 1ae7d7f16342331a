package model

import "time"

// Article は投稿記事を表す。
// 作成後は編集・削除されないイミュータブルなレコードとして扱う。
type Article struct {
	ID        int64
	Title     string
	Author    string
	Body      string
	ImageURL  string // 画像なしの場合は空文字列
	CreatedAt time.Time
	UserID    int64
}
