package main

import "github.com/edgeflare/valuelog/cmd/valuelog"

func main() {
	valuelog.Main()
}
