package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Run level messages (info)
		"Starting decode run %s":              "デコード実行 %s を開始します",
		"Decoding %s":                         "%s をデコード中",
		"Decoding on %s":                      "%s でデコードします",
		"Decoded %d frames in %s":             "%d フレームを %s でデコードしました",
		"Average %.2f ms per frame, %.1f FPS": "1フレームあたり平均 %.2f ms, %.1f FPS",
		"Stream changed to %dx%d %d-bit":      "ストリームが %dx%d %d ビットに変わりました",
		"Output saved to %s":                  "出力を %s に保存しました",
		"Summary saved to %s":                 "サマリーを %s に保存しました",
		"Interrupted, shutting down...":       "中断されました。シャットダウン中...",

		// Run errors
		"Failed to open input: %s":         "入力を開けませんでした: %s",
		"Failed to create decoder: %s":     "デコーダーを作成できませんでした: %s",
		"Codec %s %d-bit is not supported": "コーデック %s %d ビットはサポートされていません",
		"Failed to seek: %s":               "シークに失敗しました: %s",
		"Failed to demux: %s":              "デマックスに失敗しました: %s",
		"Failed to decode: %s":             "デコードに失敗しました: %s",
		"Failed to save frame: %s":         "フレームの保存に失敗しました: %s",
		"Failed to save snapshot: %s":      "スナップショットの保存に失敗しました: %s",
		"Failed to write summary: %s":      "サマリーの書き込みに失敗しました: %s",

		// Demuxer
		"Detected %s stream":                        "%s ストリームを検出しました",
		"Opened %s stream %dx%d, %d-bit, %d frames": "%s ストリームを開きました %dx%d, %d ビット, %d フレーム",
		"Spooled %d bytes to %s":                    "%d バイトを %s に退避しました",
		"Seek to frame %d from key frame %d (%s)":   "キーフレーム %[2]d からフレーム %[1]d へシーク (%[3]s)",
		"Probe failed: %s":                          "プローブに失敗しました: %s",
		"Could not parse SPS: %s":                   "SPSを解析できませんでした: %s",

		// Decoder
		"Using %s":                                              "%s を使用します",
		"HIP unavailable, using emulated device memory: %s":     "HIPが利用できないため、エミュレートしたデバイスメモリを使用します: %s",
		"Hardware decoder unavailable, falling back to CPU: %s": "ハードウェアデコーダーが利用できないため、CPUにフォールバックします: %s",
		"Output surface %dx%d %s (%s)":                          "出力サーフェス %dx%d %s (%s)",
		"Started decode session %d: %s":                         "デコードセッション %d を開始しました: %s",
		"Session %d drained, %d frames ready":                   "セッション %d を排出しました。%d フレームが利用可能です",
		"Surface without a pending timestamp":                   "対応するタイムスタンプのないサーフェス",

		// Frame output
		"Writing %s frames to %s": "%s フレームを %s に書き込み中",
		"Saved snapshot %s":       "スナップショット %s を保存しました",
	})
}
