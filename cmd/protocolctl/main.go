// Command protocolctl validates provider manifests offline, without
// reaching the network, implementing the validation-tool external interface.
package main

func main() {
	Execute()
}
