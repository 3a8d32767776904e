// Package server は、撮影フローをHTTPで操作するためのサーバーを提供します。
//
// 責務:
//   - 撮影・送信・リセットの操作を受け付ける
//   - 状態変化をServer-Sent Eventsで配信する
//   - ライブプレビューをMJPEGで配信する
//   - 保持している写真と撮影画面の配信
//
// ルーティングはapiパッケージのServerInterfaceに従う。
// コンテキストのキャンセルかSIGINT/SIGTERMでグレースフルシャットダウンする。
package server
