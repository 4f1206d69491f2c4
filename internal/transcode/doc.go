// Package transcode turns a synthesized clip into an adaptive HLS ladder with
// ffmpeg and reads clip metadata with ffprobe.
//
// Every variant is encoded into one output directory as <name>.m3u8 plus
// <name>_NNN.ts segments, and master.m3u8 references the variants in ladder
// order. A thumbnail is cut from the source at a fixed offset.
package transcode
