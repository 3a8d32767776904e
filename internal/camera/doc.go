// Package camera 静止画撮影用のカメラセッションを担う
//
// # 責務
// - カメラデバイスの検出と向き（背面/前面）による選択
// - デバイス入力とJPEG静止画出力の構成
// - セッションの開始・停止とライフサイクル通知
// - 1回ごとの静止画キャプチャ
//
// # 仕様
//   - Session: 全てのハードウェア操作を専用のワークキューで直列に実行する
//   - Observer への通知とキャプチャ完了はメインキュー上で呼ばれる
//   - キャプチャ失敗（出力なし・映像接続なし・取得失敗）は全て nil の画像として返す
//   - V4L2Backend: ffmpeg / v4l2-ctl によるLinux実装
//   - MockBackend: テストとデモ用の実装
//
// # 前提要件
//   - v4l-utils: カメラ名とフォーマットの取得に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//   - ffmpeg: 画像キャプチャとプレビューストリームに使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
