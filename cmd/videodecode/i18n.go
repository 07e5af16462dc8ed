// Package main provides localization for the videodecode CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Flag categories
		"Input":   "入力",
		"Output":  "出力先",
		"Decoder": "デコーダー",
		"Seek":    "シーク",
		"Logging": "ログ",

		// Commands
		"Decode video streams on an accelerator or the CPU":                    "アクセラレーターまたはCPUで動画ストリームをデコード",
		"Decode a video file and report throughput":                            "動画ファイルをデコードしてスループットを表示",
		"List accelerators the hardware decoder can use":                       "ハードウェアデコーダーが使用できるアクセラレーターを一覧表示",
		"Show the symbols registered for host bindings":                        "ホストバインディングに登録されたシンボルを表示",
		"Detect the codec of an MP4 file and the backend that would decode it": "MP4ファイルのコーデックとデコードに使うバックエンドを判定",

		// Input/output flags
		"YAML configuration file":                            "YAML設定ファイル",
		"Append raw decoded frames to this file":             "デコードした生フレームをこのファイルに追記",
		"Output execution summary to file (Markdown format)": "実行サマリーをファイルに出力（Markdown形式）",
		"Directory for PNG snapshots":                        "PNGスナップショットのディレクトリ",
		"Snapshot every Nth frame":                           "Nフレームごとにスナップショットを保存",

		// Decoder flags
		"Device id":                                                      "デバイスID",
		"Surface memory (internal, dev_copied, host_copied, not_mapped)": "サーフェスのメモリ（internal, dev_copied, host_copied, not_mapped）",
		"Decoder backend (auto, hardware, cpu)":                          "デコーダーのバックエンド（auto, hardware, cpu）",
		"Path to the ffmpeg executable":                                  "ffmpeg実行ファイルのパス",
		"ffmpeg hardware acceleration method":                            "ffmpegのハードウェアアクセラレーション方式",
		"Crop rectangle as left,top,right,bottom":                        "切り抜き矩形（left,top,right,bottom）",
		"Resize decoded frames to WxH":                                   "デコードしたフレームをWxHにリサイズ",

		// Seek flags
		"Seek to this frame before decoding (-1 = no seek)": "デコード前にこのフレームへシーク（-1 = シークしない）",
		"Seek mode (exact, prev-key)":                       "シークモード（exact, prev-key）",
		"Seek criteria (frame, timestamp)":                  "シーク基準（frame, timestamp）",

		// Logging flags
		"Log level (debug, info, warn, error)": "ログレベル（debug, info, warn, error）",
		"Suppress all log output":              "全てのログ出力を抑制",

		// Runtime messages
		"Error: %s":                             "エラー: %s",
		"No devices found":                      "デバイスが見つかりません",
		"crop %q must be left,top,right,bottom": "切り抜き %q は left,top,right,bottom の形式で指定してください",
		"exactly one input file is required":    "入力ファイルを1つだけ指定してください",
		"Codec: %s":                             "コーデック: %s",
		"Backend: %s":                           "バックエンド: %s",
		"Device: %s":                            "デバイス: %s",

		// Summary content
		"Decode Summary": "デコードサマリー",
		"Generated":      "生成日時",
		"Session":        "セッション",
		"Item":           "項目",
		"Value":          "値",

		"Stream":     "ストリーム",
		"Codec":      "コーデック",
		"Resolution": "解像度",
		"Bit Depth":  "ビット深度",
		"Bitstream":  "ビットストリーム",

		"Device":       "デバイス",
		"Name":         "名前",
		"Architecture": "アーキテクチャ",
		"Backend":      "バックエンド",

		"Frames":    "フレーム",
		"Total":     "合計",
		"Returned":  "取得",
		"Flushed":   "フラッシュ",
		"Sessions":  "セッション数",
		"Snapshots": "スナップショット",

		"Timing":           "時間",
		"Elapsed":          "経過時間",
		"Session Overhead": "セッションのオーバーヘッド",
		"Per Frame":        "1フレームあたり",
		"Throughput":       "スループット",

		"Settings": "設定",
		"Memory":   "メモリ",
		"Resize":   "リサイズ",
		"Crop":     "切り抜き",
	})
}
